package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"schoolcore.org/internal/records"
)

var _ records.Gateway = (*Store)(nil)

const studentColumns = `id, tenant_id, first_name, last_name, coalesce(email, ''), status, created_at, updated_at`

func scanStudent(row *sql.Row) (*records.Student, error) {
	var st records.Student
	err := row.Scan(&st.ID, &st.TenantID, &st.FirstName, &st.LastName,
		&st.Email, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) InsertStudent(ctx context.Context, st *records.Student) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into students (id, tenant_id, first_name, last_name, email, status, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8)
	`, st.ID, st.TenantID, st.FirstName, st.LastName, st.Email, st.Status, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return records.ErrTenantUnavailable
		}
		return err
	}
	return nil
}

func (s *Store) FindStudent(ctx context.Context, tenantID, id string) (*records.Student, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if tenantID == "" {
		return nil, records.ErrTenantRequired
	}
	row := s.db.QueryRowContext(ctx, `
		select `+studentColumns+`
		from students
		where tenant_id = $1 and id = $2
	`, tenantID, id)
	return scanStudent(row)
}

func (s *Store) ListStudents(ctx context.Context, tenantID string, filter records.ListFilter) ([]*records.Student, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if tenantID == "" {
		return nil, records.ErrTenantRequired
	}
	query := `
		select ` + studentColumns + `
		from students
		where tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		query += ` and status = $2`
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(` order by last_name, first_name, id limit $%d`, len(args)+1)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*records.Student
	for rows.Next() {
		var st records.Student
		if err := rows.Scan(&st.ID, &st.TenantID, &st.FirstName, &st.LastName,
			&st.Email, &st.Status, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &st)
	}
	return result, rows.Err()
}

func (s *Store) UpdateStudent(ctx context.Context, tenantID, id string, patch records.StudentPatch) (*records.Student, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if tenantID == "" {
		return nil, records.ErrTenantRequired
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if patch.FirstName != nil {
		setClauses = append(setClauses, fmt.Sprintf("first_name = $%d", idx))
		args = append(args, *patch.FirstName)
		idx++
	}
	if patch.LastName != nil {
		setClauses = append(setClauses, fmt.Sprintf("last_name = $%d", idx))
		args = append(args, *patch.LastName)
		idx++
	}
	if patch.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = nullif($%d, '')", idx))
		args = append(args, *patch.Email)
		idx++
	}
	if patch.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, *patch.Status)
		idx++
	}
	if len(setClauses) == 0 {
		return s.FindStudent(ctx, tenantID, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`
		update students
		set %s
		where tenant_id = $%d and id = $%d
		returning `+studentColumns,
		strings.Join(setClauses, ", "), idx, idx+1)
	args = append(args, tenantID, id)

	return scanStudent(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) DeleteStudent(ctx context.Context, tenantID, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if tenantID == "" {
		return records.ErrTenantRequired
	}
	res, err := s.db.ExecContext(ctx, `
		delete from students
		where tenant_id = $1 and id = $2
	`, tenantID, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return records.ErrNotFound
	}
	return nil
}
