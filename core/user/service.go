package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrCodeExists  = errors.New("access code already in use")
)

// maxCodeAttempts bounds access code regeneration on (unlikely) collisions.
const maxCodeAttempts = 5

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	// Directory resolves credentials to users. *Service implements it.
	Directory interface {
		FindByEmail(ctx context.Context, email string) (User, error)
		FindByCode(ctx context.Context, code, role string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

var _ Directory = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

func (svc *Service) now() time.Time { return svc.nowFunc().UTC() }

func (svc *Service) checkUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if email == "" {
		return nil
	}
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Create adds a new active User; admins & teachers get a fresh access code.
// nu must have been validated.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Email); err != nil {
		return User{}, err
	}

	now := svc.now()
	usr := User{
		SchoolID:  nu.SchoolID,
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !UsesAccessCode(usr.Role) {
		usr, err := svc.repo.CreateUser(ctx, usr)
		return usr, errors.Wrap(err, "creating user")
	}

	for attempt := 1; ; attempt++ {
		code, err := NewAccessCode(usr.Role)
		if err != nil {
			return User{}, err
		}
		usr.AccessCode = code
		created, err := svc.repo.CreateUser(ctx, usr)
		if err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrCodeExists || attempt >= maxCodeAttempts {
			return User{}, errors.Wrap(err, "creating user")
		}
	}
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: core.CleanString(id)})
}

// FindByEmail is the student & parent credential lookup.
func (svc *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

// FindByCode is the teacher & admin credential lookup.
func (svc *Service) FindByCode(ctx context.Context, code, role string) (User, error) {
	code = NormalizeAccessCode(code)
	if code == "" || !UsesAccessCode(role) {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{AccessCode: code, Role: role})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if err := svc.checkUniqueness(ctx, uu.Email, usr); err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// RegenerateCode replaces the access code of an admin or teacher, invalidating the previous one.
func (svc *Service) RegenerateCode(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	for attempt := 1; ; attempt++ {
		code, err := NewAccessCode(usr.Role)
		if err != nil {
			return User{}, err
		}
		usr.AccessCode = code
		usr.UpdatedAt = svc.now()
		updated, err := svc.repo.UpdateUser(ctx, usr)
		if err == nil {
			return updated, nil
		}
		if errors.Cause(err) != ErrCodeExists || attempt >= maxCodeAttempts {
			return User{}, errors.Wrap(err, "updating access code")
		}
	}
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}
