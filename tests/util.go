package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/storage/database"
)

// PrepareDB returns a migrated & emptied postgres database, skipping the test when TEST_DATABASE_URL is unset.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping())
	require.NoError(t, database.Migrate(db))
	_, err = db.Exec("TRUNCATE users, schools")
	require.NoError(t, err)
	return db
}

// PrepareMongo returns an emptied mongodb database, skipping the test when TEST_MONGO_URI is unset.
func PrepareMongo(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("masomo_test")
	require.NoError(t, db.Drop(ctx))
	return db
}

func CreateSchool(t *testing.T, repo school.Repository, slug, name string, isActive bool) school.School {
	t.Helper()

	sch, err := repo.CreateSchool(context.Background(), school.School{
		Slug:      slug,
		Name:      name,
		IsActive:  isActive,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	})
	require.NoError(t, err, "createSchool() failed")
	return sch
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, email, role, code string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	tstamp = tstamp.Truncate(time.Microsecond)
	usr, err := repo.CreateUser(context.Background(), user.User{
		SchoolID:   schoolID,
		Name:       name,
		Email:      email,
		Role:       role,
		AccessCode: code,
		IsActive:   isActive,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	})
	require.NoError(t, err, "createUser() failed")
	return usr
}
