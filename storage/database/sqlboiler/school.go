package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/storage/database"
)

const schoolColumns = "id, slug, name, is_active, created_at"

type schoolRow struct {
	ID        string    `boil:"id"`
	Slug      string    `boil:"slug"`
	Name      string    `boil:"name"`
	IsActive  bool      `boil:"is_active"`
	CreatedAt time.Time `boil:"created_at"`
}

func (row schoolRow) school() school.School {
	return school.School{
		ID:        row.ID,
		Slug:      row.Slug,
		Name:      row.Name,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type schoolRepository struct {
	exec core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{exec: exec}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	sch.ID = uuid.New().String()
	sch.CreatedAt = sch.CreatedAt.UTC()
	_, err := queries.Raw(
		"INSERT INTO schools ("+schoolColumns+") VALUES ($1, $2, $3, $4, $5)",
		sch.ID, sch.Slug, sch.Name, sch.IsActive, sch.CreatedAt,
	).ExecContext(ctx, repo.exec)
	if err != nil {
		if database.UniqueViolation(err) == "schools_slug_key" {
			return school.School{}, school.ErrSlugExists
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, filter school.GetFilter) (school.School, error) {
	var q *queries.Query
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return school.School{}, school.ErrNotFound
		}
		q = queries.Raw("SELECT "+schoolColumns+" FROM schools WHERE id = $1", filter.ID)
	case filter.Slug != "":
		q = queries.Raw("SELECT "+schoolColumns+" FROM schools WHERE slug = $1", filter.Slug)
	default:
		return school.School{}, school.ErrNotFound
	}

	var row schoolRow
	if err := q.Bind(ctx, repo.exec, &row); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.School{}, school.ErrNotFound
		}
		return school.School{}, errors.Wrap(err, "finding school")
	}
	return row.school(), nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, activeOnly bool) ([]school.School, error) {
	query := "SELECT " + schoolColumns + " FROM schools"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name ASC"

	var rows []schoolRow
	if err := queries.Raw(query).Bind(ctx, repo.exec, &rows); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, row.school())
	}
	return schools, nil
}
