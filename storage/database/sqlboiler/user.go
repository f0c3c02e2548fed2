package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/storage/database"
)

const userColumns = "id, school_id, name, email, role, is_active, access_code, created_at, updated_at, last_login"

// userRow is the `users` table row.
type userRow struct {
	ID         string      `boil:"id"`
	SchoolID   string      `boil:"school_id"`
	Name       string      `boil:"name"`
	Email      null.String `boil:"email"`
	Role       string      `boil:"role"`
	IsActive   bool        `boil:"is_active"`
	AccessCode null.String `boil:"access_code"`
	CreatedAt  time.Time   `boil:"created_at"`
	UpdatedAt  time.Time   `boil:"updated_at"`
	LastLogin  null.Time   `boil:"last_login"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:         usr.ID,
		SchoolID:   usr.SchoolID,
		Name:       usr.Name,
		Email:      null.NewString(usr.Email, usr.Email != ""),
		Role:       usr.Role,
		IsActive:   usr.IsActive,
		AccessCode: null.NewString(usr.AccessCode, usr.AccessCode != ""),
		CreatedAt:  usr.CreatedAt.UTC(),
		UpdatedAt:  usr.UpdatedAt.UTC(),
		LastLogin:  null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	return user.User{
		ID:         row.ID,
		SchoolID:   row.SchoolID,
		Name:       row.Name,
		Email:      row.Email.String,
		Role:       row.Role,
		IsActive:   row.IsActive,
		AccessCode: row.AccessCode.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		LastLogin:  row.LastLogin.Time.UTC(),
	}
}

// trapErr maps psql "no rows" & unique violations to user errors.
func (repo userRepository) trapErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	switch database.UniqueViolation(err) {
	case "users_email_key":
		return user.ErrEmailExists
	case "users_access_code_key":
		return user.ErrCodeExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	query := "SELECT COUNT(*) AS count FROM users WHERE email = $1"
	args := []interface{}{email}
	for _, u := range excludedUsers {
		args = append(args, u.ID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}

	var res struct {
		Count int `boil:"count"`
	}
	if err := queries.Raw(query, args...).Bind(ctx, repo.exec, &res); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if res.Count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.boil(usr)
	_, err := queries.Raw(
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		row.ID, row.SchoolID, row.Name, row.Email, row.Role, row.IsActive, row.AccessCode, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).ExecContext(ctx, repo.exec)
	if err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		where, args = "id = $1", []interface{}{filter.ID}
	case filter.Email != "":
		where, args = "email = $1", []interface{}{filter.Email}
	case filter.AccessCode != "":
		where, args = "access_code = $1", []interface{}{filter.AccessCode}
		if filter.Role != "" {
			where += " AND role = $2"
			args = append(args, filter.Role)
		}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := queries.Raw("SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", args...).Bind(ctx, repo.exec, &row); err != nil {
		return user.User{}, repo.trapErr(err, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.SchoolID != "" {
			conds = append(conds, "school_id = "+arg(filter.SchoolID))
		}
		if len(filter.Roles) > 0 {
			placeholders := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				placeholders = append(placeholders, arg(role))
			}
			conds = append(conds, "role IN ("+strings.Join(placeholders, ", ")+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = "+arg(*filter.IsActive))
		}
	}

	query := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	var rows []userRow
	if err := queries.Raw(query, args...).Bind(ctx, repo.exec, &rows); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.boil(usr)
	var updated userRow
	err := queries.Raw(
		"UPDATE users SET name = $2, email = $3, is_active = $4, access_code = $5, updated_at = $6, last_login = $7"+
			" WHERE id = $1 RETURNING "+userColumns,
		row.ID, row.Name, row.Email, row.IsActive, row.AccessCode, row.UpdatedAt, row.LastLogin,
	).Bind(ctx, repo.exec, &updated)
	if err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	return repo.unboil(updated), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	res, err := queries.Raw("DELETE FROM users WHERE id = ANY($1)", pq.Array(valid)).ExecContext(ctx, repo.exec)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
