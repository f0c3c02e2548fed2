// Package auth checks portal credentials and opens the session of a tab.
package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	// Schools resolves tenant slugs. *school.Service implements it.
	Schools interface {
		GetBySlug(ctx context.Context, slug string) (school.School, error)
	}

	// Credentials are typed on a school's login page: students & parents give
	// their email, teachers & admins their access code.
	Credentials struct {
		SchoolSlug string `json:"-"`
		Role       string `json:"role"`
		Email      string `json:"email"`
		Code       string `json:"code"`
	}

	Flow struct {
		users   user.Directory
		schools Schools
		logger  core.Logger
	}
)

func NewFlow(users user.Directory, schools Schools, logger core.Logger) *Flow {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Flow{users: users, schools: schools, logger: logger}
}

// Login checks creds once and stores the session of the matching user in guard's tab.
// Unknown schools, users & roles all fail with ErrInvalidCredentials.
func (f *Flow) Login(ctx context.Context, guard *session.Guard, creds Credentials) (user.User, error) {
	sch, err := f.schools.GetBySlug(ctx, creds.SchoolSlug)
	if err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, errors.Wrap(err, "resolving school")
	}
	if !sch.IsActive {
		return user.User{}, ErrInvalidCredentials
	}

	role := core.CleanString(creds.Role, true /* lower */)
	var usr user.User
	switch {
	case !user.IsRole(role):
		return user.User{}, ErrInvalidCredentials
	case user.UsesAccessCode(role):
		usr, err = f.users.FindByCode(ctx, creds.Code, role)
	default:
		usr, err = f.users.FindByEmail(ctx, creds.Email)
	}
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	if usr.Role != role || usr.SchoolID != sch.ID {
		return user.User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return user.User{}, ErrAccountDeactivated
	}

	if updated, err := f.users.SetLastLogin(ctx, usr); err != nil {
		f.logger.Warn("auth: recording last login", errors.Wrap(err, usr.ID))
	} else {
		usr = updated
	}
	// the code is a credential: neither the session nor the caller keeps it
	usr.AccessCode = ""

	guard.SetSession(ctx, usr, sch.Slug)
	f.logger.Info("auth: logged in", map[string]interface{}{"user_id": usr.ID, "role": usr.Role, "school": sch.Slug})
	return usr, nil
}

// Logout clears the session of guard's tab, and of the browser's other tabs that rely on the shared tier.
func (f *Flow) Logout(ctx context.Context, guard *session.Guard) {
	guard.Clear(ctx)
}
