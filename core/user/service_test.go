package user_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
	inmemdb "github.com/trezcool/masomo-portal/storage/database/inmem"
)

const schoolID = "c0ffee00-0000-4000-8000-000000000001"

var codeRegex = regexp.MustCompile(`^(ADM|TCH)-[0-9A-F]{8}$`)

func newService() *user.Service {
	return user.NewService(inmemdb.NewUserRepository(inmemdb.Open()))
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func TestNewAccessCode(t *testing.T) {
	seen := make(map[string]bool)
	for _, role := range user.CodeRoles {
		for i := 0; i < 50; i++ {
			code, err := user.NewAccessCode(role)
			require.NoError(t, err)
			assert.Regexp(t, codeRegex, code)
			assert.False(t, seen[code], "duplicate code %s", code)
			seen[code] = true
		}
	}

	for _, role := range []string{user.RoleStudent, user.RoleParent, ""} {
		_, err := user.NewAccessCode(role)
		assert.Error(t, err, role)
	}
}

func TestNormalizeAccessCode(t *testing.T) {
	assert.Equal(t, "ADM-1A2B3C4D", user.NormalizeAccessCode("  adm-1a2b3c4d \n"))
	assert.Equal(t, "", user.NormalizeAccessCode("   "))
}

func TestNewUser_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{name: "student", nu: user.NewUser{SchoolID: schoolID, Name: "Ada", Email: " Ada@Riverside.test ", Role: "Student"}},
		{name: "teacher", nu: user.NewUser{SchoolID: schoolID, Name: "Bob", Email: "bob@riverside.test", Role: user.RoleTeacher}},
		{name: "teacher without email", nu: user.NewUser{SchoolID: schoolID, Name: "Bob", Role: user.RoleTeacher}, wantErr: true},
		{name: "parent without email", nu: user.NewUser{SchoolID: schoolID, Name: "Cy", Role: user.RoleParent}, wantErr: true},
		{name: "bad email", nu: user.NewUser{SchoolID: schoolID, Name: "Di", Email: "nope", Role: user.RoleStudent}, wantErr: true},
		{name: "bad role", nu: user.NewUser{SchoolID: schoolID, Name: "Ed", Role: "janitor"}, wantErr: true},
		{name: "no school", nu: user.NewUser{Name: "Fa", Role: user.RoleAdmin}, wantErr: true},
		{name: "no name", nu: user.NewUser{SchoolID: schoolID, Name: "  ", Role: user.RoleAdmin}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	nu := user.NewUser{SchoolID: schoolID, Name: " Ada ", Email: " Ada@Riverside.test ", Role: "Student"}
	require.NoError(t, nu.Validate(validate))
	assert.Equal(t, "Ada", nu.Name)
	assert.Equal(t, "ada@riverside.test", nu.Email)
	assert.Equal(t, user.RoleStudent, nu.Role)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	for _, role := range user.AllRoles {
		usr, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: role, Email: role + "@riverside.test", Role: role})
		require.NoError(t, err)
		assert.NotEmpty(t, usr.ID)
		assert.True(t, usr.IsActive)
		assert.False(t, usr.CreatedAt.IsZero())
		if user.UsesAccessCode(role) {
			assert.Regexp(t, codeRegex, usr.AccessCode)
		} else {
			assert.Empty(t, usr.AccessCode)
		}
	}

	_, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "Dup", Email: "student@riverside.test", Role: user.RoleParent})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, map[string]string{"email": user.ErrEmailExists.Error()}, vErr.FieldMap())
}

func TestService_credentialLookups(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	teacher, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "T", Email: "t@riverside.test", Role: user.RoleTeacher})
	require.NoError(t, err)
	student, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "S", Email: "s@riverside.test", Role: user.RoleStudent})
	require.NoError(t, err)

	got, err := svc.FindByCode(ctx, " "+teacher.AccessCode+" ", user.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, got.ID)

	_, err = svc.FindByCode(ctx, teacher.AccessCode, user.RoleAdmin)
	assert.Equal(t, user.ErrNotFound, err)
	_, err = svc.FindByCode(ctx, teacher.AccessCode, user.RoleStudent)
	assert.Equal(t, user.ErrNotFound, err)
	_, err = svc.FindByCode(ctx, "", user.RoleTeacher)
	assert.Equal(t, user.ErrNotFound, err)

	got, err = svc.FindByEmail(ctx, "S@Riverside.test")
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)

	_, err = svc.FindByEmail(ctx, "nobody@riverside.test")
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_RegenerateCode(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	admin, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "A", Email: "a@riverside.test", Role: user.RoleAdmin})
	require.NoError(t, err)

	updated, err := svc.RegenerateCode(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotEqual(t, admin.AccessCode, updated.AccessCode)
	assert.Regexp(t, codeRegex, updated.AccessCode)

	_, err = svc.FindByCode(ctx, admin.AccessCode, user.RoleAdmin)
	assert.Equal(t, user.ErrNotFound, err)

	student, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "S", Email: "s@riverside.test", Role: user.RoleStudent})
	require.NoError(t, err)
	_, err = svc.RegenerateCode(ctx, student.ID)
	assert.Error(t, err)
}

func TestService_UpdateQueryDelete(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	validate := newValidator()

	a, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "A", Email: "a@riverside.test", Role: user.RoleParent})
	require.NoError(t, err)
	b, err := svc.Create(ctx, user.NewUser{SchoolID: schoolID, Name: "B", Email: "b@riverside.test", Role: user.RoleStudent})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.NewUser{SchoolID: "other", Name: "C", Email: "c@other.test", Role: user.RoleTeacher})
	require.NoError(t, err)

	inactive := false
	uu := user.UpdateUser{IsActive: &inactive}
	require.NoError(t, uu.Validate(a, validate))
	a, err = svc.Update(ctx, a, uu)
	require.NoError(t, err)
	assert.Equal(t, "A", a.Name)
	assert.False(t, a.IsActive)

	uu = user.UpdateUser{Email: "b@riverside.test"}
	require.NoError(t, uu.Validate(a, validate))
	_, err = svc.Update(ctx, a, uu)
	assert.Error(t, err)

	active := true
	users, err := svc.Query(ctx, &user.QueryFilter{SchoolID: schoolID, IsActive: &active})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, b.ID, users[0].ID)

	users, err = svc.Query(ctx, &user.QueryFilter{Roles: []string{user.RoleTeacher, user.RoleParent}})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	last, err := svc.SetLastLogin(ctx, b)
	require.NoError(t, err)
	assert.False(t, last.LastLogin.IsZero())

	n, err := svc.Delete(ctx, a.ID, b.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = svc.GetByID(ctx, a.ID)
	assert.Equal(t, user.ErrNotFound, err)
}
