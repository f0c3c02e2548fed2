package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/masomo-portal/core/school"
)

type schoolDoc struct {
	ID        string    `bson:"_id"`
	Slug      string    `bson:"slug"`
	Name      string    `bson:"name"`
	IsActive  bool      `bson:"is_active"`
	CreatedAt time.Time `bson:"created_at"`
}

func (doc schoolDoc) school() school.School {
	return school.School{
		ID:        doc.ID,
		Slug:      doc.Slug,
		Name:      doc.Name,
		IsActive:  doc.IsActive,
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

type schoolRepository struct {
	schools *mongo.Collection
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *mongo.Database) *schoolRepository {
	return &schoolRepository{schools: db.Collection(schoolsCollection)}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	doc := schoolDoc{
		ID:        uuid.New().String(),
		Slug:      sch.Slug,
		Name:      sch.Name,
		IsActive:  sch.IsActive,
		CreatedAt: sch.CreatedAt.UTC(),
	}
	if _, err := repo.schools.InsertOne(ctx, doc); err != nil {
		if duplicateKey(err, "slug") {
			return school.School{}, school.ErrSlugExists
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return doc.school(), nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, filter school.GetFilter) (school.School, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.Slug != "":
		q = bson.M{"slug": filter.Slug}
	default:
		return school.School{}, school.ErrNotFound
	}

	var doc schoolDoc
	if err := repo.schools.FindOne(ctx, q).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return school.School{}, school.ErrNotFound
		}
		return school.School{}, errors.Wrap(err, "finding school")
	}
	return doc.school(), nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, activeOnly bool) ([]school.School, error) {
	q := bson.M{}
	if activeOnly {
		q["is_active"] = true
	}
	cursor, err := repo.schools.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	var docs []schoolDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding schools")
	}
	schools := make([]school.School, 0, len(docs))
	for _, doc := range docs {
		schools = append(schools, doc.school())
	}
	return schools, nil
}
