package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

var (
	// errors
	ErrNotFound   = errors.New("school not found")
	ErrSlugExists = errors.New("a school with this slug already exists")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchool(ctx context.Context, filter GetFilter) (School, error)
		QuerySchools(ctx context.Context, activeOnly bool) ([]School, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a new active School. ns must have been validated.
func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	sch, err := svc.repo.CreateSchool(ctx, School{
		Slug:      ns.Slug,
		Name:      ns.Name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return School{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: err.Error()})
		}
		return School{}, errors.Wrap(err, "creating school")
	}
	return sch, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{ID: core.CleanString(id)})
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (School, error) {
	slug = core.CleanString(slug, true /* lower */)
	if slug == "" {
		return School{}, ErrNotFound
	}
	return svc.repo.GetSchool(ctx, GetFilter{Slug: slug})
}

// QueryActive lists the schools offered on the school-selection page.
func (svc *Service) QueryActive(ctx context.Context) ([]School, error) {
	return svc.repo.QuerySchools(ctx, true)
}
