package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var accountCols = []string{
	"user_id", "username", "email", "password_hash", "display_name", "phone_number",
	"department", "position", "enabled", "account_locked", "failed_login_attempts",
	"last_login_at", "password_changed_at", "created_by", "created_at",
	"updated_by", "updated_at", "deleted_at", "version",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func aliceRow(rows *sqlmock.Rows, lastLogin any) *sqlmock.Rows {
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(int64(7), "alice", "alice@example.com", "$2a$12$hash", "Alice", "010",
		"QA", "Inspector", true, false, int64(2),
		lastLogin, nil, "admin", created,
		"admin", created, nil, int64(3))
}

func TestFindByUsername_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	last := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`).
		WithArgs("alice").
		WillReturnRows(aliceRow(sqlmock.NewRows(accountCols), last))

	got, err := repo.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if got.ID != 7 || got.Username != "alice" || got.Email != "alice@example.com" || !got.Enabled || got.Locked {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.FailedLoginAttempts != 2 || got.Version != 3 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(last) {
		t.Fatalf("last login not scanned: %v", got.LastLoginAt)
	}
	if got.PasswordChangedAt != nil || got.DeletedAt != nil {
		t.Fatalf("null timestamps must stay nil: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+username\s*=\s*\$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByEmail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+email\s*=\s*\$1`).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByEmail(context.Background(), "alice@example.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+user_id\s*=\s*\$1`).
		WithArgs(int64(7)).
		WillReturnRows(aliceRow(sqlmock.NewRows(accountCols), nil))

	got, err := repo.FindByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.Username != "alice" || got.LastLoginAt != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestPermissionsFor(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+DISTINCT\s+p\.permission_code.*WHERE\s+ur\.user_id\s*=\s*\$1.*ORDER\s+BY\s+p\.permission_code$`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_code"}).AddRow("USER_READ").AddRow("USER_UPDATE"))

	got, err := repo.PermissionsFor(context.Background(), 7)
	if err != nil {
		t.Fatalf("PermissionsFor error: %v", err)
	}
	if len(got) != 2 || got[0] != "USER_READ" || got[1] != "USER_UPDATE" {
		t.Fatalf("unexpected permissions: %v", got)
	}
}

func TestPermissionsFor_NoRoles(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+DISTINCT`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_code"}))

	got, err := repo.PermissionsFor(context.Background(), 8)
	if err != nil {
		t.Fatalf("PermissionsFor error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestList_BuildsFilter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	enabled := true
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+deleted_at\s+IS\s+NULL\s+AND\s+username\s+ILIKE\s+\$1\s+ESCAPE\s+'\\'\s+AND\s+enabled\s*=\s*\$2\s+ORDER\s+BY\s+created_at\s+DESC,\s*user_id\s+DESC$`).
		WithArgs("%ali%", true).
		WillReturnRows(aliceRow(sqlmock.NewRows(accountCols), nil))

	got, err := repo.List(context.Background(), models.AccountFilter{Username: "ali", Enabled: &enabled})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 1 || got[0].Username != "alice" {
		t.Fatalf("unexpected list: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_EscapesWildcards(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+deleted_at\s+IS\s+NULL\s+AND\s+username\s+ILIKE\s+\$1\s+ESCAPE\s+'\\'\s+AND\s+department\s+ILIKE\s+\$2\s+ESCAPE`).
		WithArgs(`%a\_b%`, `%100\%\\x%`).
		WillReturnRows(sqlmock.NewRows(accountCols))

	got, err := repo.List(context.Background(), models.AccountFilter{Username: "a_b", Department: `100%\x`})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unexpected list: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alice", "alice"},
		{"a_b", `a\_b`},
		{"50%", `50\%`},
		{`c:\dir`, `c:\\dir`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\b.*RETURNING\s+user_id,\s*created_at,\s*updated_at,\s*version$`).
		WithArgs("bob", "bob@example.com", "hash", "Bob", "", "", "", true, false, now, "admin").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "created_at", "updated_at", "version"}).AddRow(int64(42), now, now, int64(0)))

	a := &models.Account{
		Username: "bob", Email: "bob@example.com", PasswordHash: "hash", DisplayName: "Bob",
		Enabled: true, PasswordChangedAt: &now, CreatedBy: "admin",
	}
	got, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 42 || got.UpdatedBy != "admin" {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestCreate_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"uq_users_username_active", common.ErrUsernameAlreadyExists},
		{"uq_users_email_active", common.ErrEmailAlreadyExists},
		{"users_pkey", common.ErrorAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			_, err := repo.Create(context.Background(), &models.Account{Username: "bob", Email: "bob@example.com"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+email\s*=\s*\$2.*version\s*=\s*version\s*\+\s*1\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`).
		WithArgs(int64(9), "x@example.com", "X", "", "", "", true, "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Account{ID: 9, Email: "x@example.com", DisplayName: "X", Enabled: true, UpdatedBy: "admin"})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdate_EmailTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_users_email_active"})

	err := repo.Update(context.Background(), &models.Account{ID: 9, Email: "taken@example.com"})
	if !errors.Is(err, common.ErrEmailAlreadyExists) {
		t.Fatalf("want ErrEmailAlreadyExists, got %v", err)
	}
}

func TestUpdatePassword_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*password_changed_at\s*=\s*\$3`).
		WithArgs(int64(7), "newhash", at, "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), 7, "newhash", at, "admin"); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}
}

func TestSetLocked_ResetsCounterOnUnlock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+account_locked\s*=\s*\$2,\s*failed_login_attempts\s*=\s*CASE\s+WHEN\s+\$2\s+THEN\s+failed_login_attempts\s+ELSE\s+0\s+END`).
		WithArgs(int64(7), false, "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetLocked(context.Background(), 7, false, "admin"); err != nil {
		t.Fatalf("SetLocked error: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+deleted_at\s*=\s*now\(\)`
	mock.ExpectExec(q).WithArgs(int64(7), "admin").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(7), "admin").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), 7, "admin"); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}
	if err := repo.SoftDelete(context.Background(), 7, "admin"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("second delete: want common.ErrorNotFound, got %v", err)
	}
}

func TestRecordLoginFailure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*failed_login_attempts\s*\+\s*1.*RETURNING\s+failed_login_attempts,\s*account_locked$`).
		WithArgs(int64(7), 5).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "account_locked"}).AddRow(int64(5), true))

	attempts, locked, err := repo.RecordLoginFailure(context.Background(), 7, 5)
	if err != nil {
		t.Fatalf("RecordLoginFailure error: %v", err)
	}
	if attempts != 5 || !locked {
		t.Fatalf("got attempts=%d locked=%v", attempts, locked)
	}
}

func TestRecordLoginSuccess(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*0,\s*last_login_at\s*=\s*\$2`).
		WithArgs(int64(7), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordLoginSuccess(context.Background(), 7, at); err != nil {
		t.Fatalf("RecordLoginSuccess error: %v", err)
	}
}

func TestAssignRoles(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	insert := `(?s)^INSERT\s+INTO\s+user_roles\b.*ON\s+CONFLICT\s+DO\s+NOTHING$`
	exists := `(?s)^SELECT\s+EXISTS`

	mock.ExpectExec(insert).WithArgs(int64(7), "ADMIN").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs(int64(7), "USER_VIEWER").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("USER_VIEWER").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := repo.AssignRoles(context.Background(), 7, []string{"ADMIN", "USER_VIEWER"}); err != nil {
		t.Fatalf("AssignRoles error: %v", err)
	}

	mock.ExpectExec(insert).WithArgs(int64(7), "GHOST").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("GHOST").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.AssignRoles(context.Background(), 7, []string{"GHOST"})
	if !errors.Is(err, common.ErrorInvalidInput) {
		t.Fatalf("want common.ErrorInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
