// Command seed bootstraps a fresh database: the role and permission
// catalog, an optional first tenant and its admin, and the global
// super-admin account.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/store/pg"
)

func main() {
	var (
		rootLogin    = flag.String("root-login", "root", "super-admin login")
		rootPassword = flag.String("root-password", "", "super-admin password (required)")
		tenantName   = flag.String("tenant", "", "optional first tenant to create")
		adminLogin   = flag.String("admin-login", "admin", "tenant admin login (used with -tenant)")
		adminPass    = flag.String("admin-password", "", "tenant admin password (used with -tenant)")
	)
	flag.Parse()

	dsn := os.Getenv("SCHOOLCORE_PG_DSN")
	if dsn == "" {
		log.Fatal("SCHOOLCORE_PG_DSN is required")
	}
	if *rootPassword == "" {
		log.Fatal("-root-password is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	perms := map[string]string{
		auth.PermStudentsRead:  "read student records in own tenant",
		auth.PermStudentsWrite: "create and modify student records in own tenant",
	}
	permIDs := make(map[string]string, len(perms))
	for name, desc := range perms {
		p, err := store.EnsurePermission(ctx, name, desc)
		if err != nil {
			log.Fatalf("permission %s: %v", name, err)
		}
		permIDs[name] = p.ID
	}

	superAdmin, err := store.EnsureRole(ctx, auth.RoleSuperAdmin, "platform operator, crosses tenant boundaries")
	if err != nil {
		log.Fatalf("role %s: %v", auth.RoleSuperAdmin, err)
	}
	admin, err := store.EnsureRole(ctx, auth.RoleAdmin, "tenant administrator")
	if err != nil {
		log.Fatalf("role %s: %v", auth.RoleAdmin, err)
	}
	teacher, err := store.EnsureRole(ctx, "teacher", "read-only staff member")
	if err != nil {
		log.Fatalf("role teacher: %v", err)
	}

	for _, roleID := range []string{superAdmin.ID, admin.ID} {
		for _, permID := range permIDs {
			if err := store.GrantPermission(ctx, roleID, permID); err != nil {
				log.Fatalf("grant: %v", err)
			}
		}
	}
	if err := store.GrantPermission(ctx, teacher.ID, permIDs[auth.PermStudentsRead]); err != nil {
		log.Fatalf("grant: %v", err)
	}

	rootUser, err := createUser(ctx, store, "", *rootLogin, *rootPassword)
	if err != nil {
		log.Fatalf("super-admin user: %v", err)
	}
	if rootUser != nil {
		if err := store.AssignRole(ctx, rootUser.ID, superAdmin.ID); err != nil {
			log.Fatalf("assign super-admin: %v", err)
		}
		log.Printf("super-admin %q ready", *rootLogin)
	}

	if *tenantName != "" {
		tenant, err := store.CreateTenant(ctx, *tenantName)
		if errors.Is(err, auth.ErrConflict) {
			log.Fatalf("tenant %q already exists", *tenantName)
		}
		if err != nil {
			log.Fatalf("create tenant: %v", err)
		}
		if *adminPass == "" {
			log.Fatal("-admin-password is required with -tenant")
		}
		adminUser, err := createUser(ctx, store, tenant.ID, *adminLogin, *adminPass)
		if err != nil {
			log.Fatalf("tenant admin user: %v", err)
		}
		if adminUser != nil {
			if err := store.AssignRole(ctx, adminUser.ID, admin.ID); err != nil {
				log.Fatalf("assign admin: %v", err)
			}
		}
		log.Printf("tenant %q (%s) ready with admin %q", tenant.Name, tenant.ID, *adminLogin)
	}
}

// createUser inserts a first-login user; an existing login is left untouched.
func createUser(ctx context.Context, store *pg.Store, tenantID, login, password string) (*auth.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := store.CreateUser(ctx, &auth.User{
		TenantID:     tenantID,
		Login:        login,
		PasswordHash: hash,
		Active:       true,
		FirstLogin:   true,
	})
	if errors.Is(err, auth.ErrConflict) {
		log.Printf("user %q already exists, skipping", login)
		return nil, nil
	}
	return user, err
}
