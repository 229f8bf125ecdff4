package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"schoolcore.org/internal/auth"
	"schoolcore.org/internal/config"
	"schoolcore.org/internal/httpapi"
	"schoolcore.org/internal/obs"
	"schoolcore.org/internal/records"
	"schoolcore.org/internal/session"
	"schoolcore.org/internal/store/pg"
)

var commit = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, commit)

	// Postgres: directory, tenant catalog and student gateway.
	var (
		store *pg.Store
		db    *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
	} else {
		log.Fatal("config: SCHOOLCORE_PG_DSN is required")
	}

	// Session store: redis when reachable, in-process memory as the
	// always-on fallback.
	local := session.NewMemory(time.Now)
	var primary session.Store
	if cfg.RedisAddr != "" {
		rds, err := session.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Now)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			log.Printf("redis unreachable, continuing on in-memory session store: %v", err)
		} else {
			primary = rds
		}
		cancel()
	}
	sessions := session.NewFailover(primary, local)

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     cfg.AuthSecret,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	verifier := auth.NewVerifier(codec, sessions, cfg.IdleTimeout, time.Now)
	resolver, err := auth.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	authsvc, err := auth.NewService(codec, verifier, resolver, store, sessions, time.Now)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	students, err := records.NewService(store, store, time.Now)
	if err != nil {
		log.Fatalf("records service: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(httpapi.Options{
		Auth:               authsvc,
		Verifier:           verifier,
		Resolver:           resolver,
		Students:           students,
		Tenants:            store,
		Ready:              probe,
		Version:            cfg.Version,
		LoginRateBurst:     cfg.LoginRateBurst,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting schoolcore-api %s on %s", cfg.Version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health listener.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	var grpcSrv *httpapi.GRPCServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		go grpcSrv.WatchReadiness(rootCtx, 15*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", cfg.GRPCAddr)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	_ = store.Close()
	log.Println("Stopped")
}
