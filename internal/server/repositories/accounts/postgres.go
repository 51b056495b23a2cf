package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/dbx"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
)

const (
	constraintUsername = "uq_users_username_active"
	constraintEmail    = "uq_users_email_active"
)

const accountColumns = `user_id, username, email, password_hash, display_name, phone_number,
		department, position, enabled, account_locked, failed_login_attempts,
		last_login_at, password_changed_at, created_by, created_at,
		updated_by, updated_at, deleted_at, version`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var lastLogin, pwdChanged, deleted sql.NullTime

	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Phone,
		&a.Department, &a.Position, &a.Enabled, &a.Locked, &a.FailedLoginAttempts,
		&lastLogin, &pwdChanged, &a.CreatedBy, &a.CreatedAt,
		&a.UpdatedBy, &a.UpdatedAt, &deleted, &a.Version)
	if err != nil {
		return nil, err
	}

	a.LastLoginAt = timePtr(lastLogin)
	a.PasswordChangedAt = timePtr(pwdChanged)
	a.DeletedAt = timePtr(deleted)
	return a, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE ` + where + ` AND deleted_at IS NULL`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.findOne(ctx, `username = $1`, username)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.findOne(ctx, `user_id = $1`, id)
}

func (r *PostgresRepository) PermissionsFor(ctx context.Context, accountID int64) ([]string, error) {
	query :=
		`SELECT DISTINCT p.permission_code
		 FROM user_roles ur
		 JOIN roles r ON r.role_id = ur.role_id
		 JOIN role_permissions rp ON rp.role_id = r.role_id
		 JOIN permissions p ON p.permission_id = rp.permission_id
		 WHERE ur.user_id = $1
		   AND r.enabled AND r.deleted_at IS NULL
		   AND p.deleted_at IS NULL
		 ORDER BY p.permission_code`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		perms = append(perms, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return perms, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes value match literally inside a LIKE pattern.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func (r *PostgresRepository) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []any{}

	like := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		conds = append(conds, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, column, len(args)))
	}
	like("username", filter.Username)
	like("email", filter.Email)
	like("department", filter.Department)

	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		conds = append(conds, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if filter.Locked != nil {
		args = append(args, *filter.Locked)
		conds = append(conds, fmt.Sprintf("account_locked = $%d", len(args)))
	}

	query := `SELECT ` + accountColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC, user_id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO users (username, email, password_hash, display_name, phone_number,
		                    department, position, enabled, account_locked, password_changed_at,
		                    created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 RETURNING user_id, created_at, updated_at, version`

	err := r.db.QueryRowContext(ctx, query,
		a.Username, a.Email, a.PasswordHash, a.DisplayName, a.Phone,
		a.Department, a.Position, a.Enabled, a.Locked, a.PasswordChangedAt,
		a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	if err != nil {
		return nil, mapWriteError(err)
	}

	a.UpdatedBy = a.CreatedBy
	return a, nil
}

func (r *PostgresRepository) Update(ctx context.Context, a *models.Account) error {
	query :=
		`UPDATE users
		 SET email = $2, display_name = $3, phone_number = $4, department = $5,
		     position = $6, enabled = $7, updated_by = $8,
		     updated_at = now(), version = version + 1
		 WHERE user_id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.DisplayName, a.Phone, a.Department, a.Position, a.Enabled, a.UpdatedBy)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, hash string, changedAt time.Time, by string) error {
	query :=
		`UPDATE users
		 SET password_hash = $2, password_changed_at = $3, updated_by = $4,
		     updated_at = now(), version = version + 1
		 WHERE user_id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, hash, changedAt, by)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

func (r *PostgresRepository) SetLocked(ctx context.Context, id int64, locked bool, by string) error {
	query :=
		`UPDATE users
		 SET account_locked = $2,
		     failed_login_attempts = CASE WHEN $2 THEN failed_login_attempts ELSE 0 END,
		     updated_by = $3, updated_at = now(), version = version + 1
		 WHERE user_id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, locked, by)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64, by string) error {
	query :=
		`UPDATE users
		 SET deleted_at = now(), updated_by = $2, updated_at = now(), version = version + 1
		 WHERE user_id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, by)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id int64, maxAttempts int) (int, bool, error) {
	query :=
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     account_locked = account_locked OR ($2 > 0 AND failed_login_attempts + 1 >= $2)
		 WHERE user_id = $1 AND deleted_at IS NULL
		 RETURNING failed_login_attempts, account_locked`

	var attempts int
	var locked bool
	if err := r.db.QueryRowContext(ctx, query, id, maxAttempts).Scan(&attempts, &locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, common.ErrorNotFound
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return attempts, locked, nil
}

func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	query :=
		`UPDATE users
		 SET failed_login_attempts = 0, last_login_at = $2
		 WHERE user_id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

func (r *PostgresRepository) AssignRoles(ctx context.Context, id int64, roleCodes []string) error {
	query :=
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, role_id FROM roles
		 WHERE role_code = $2 AND deleted_at IS NULL
		 ON CONFLICT DO NOTHING`

	for _, code := range roleCodes {
		res, err := r.db.ExecContext(ctx, query, id, code)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n == 0 {
			var exists bool
			err := r.db.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM roles WHERE role_code = $1 AND deleted_at IS NULL)`, code).Scan(&exists)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			if !exists {
				return fmt.Errorf("unknown role %q: %w", code, common.ErrorInvalidInput)
			}
		}
	}
	return nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		switch constraint {
		case constraintUsername:
			return common.ErrUsernameAlreadyExists
		case constraintEmail:
			return common.ErrEmailAlreadyExists
		default:
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
