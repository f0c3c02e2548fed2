package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/masomo-portal/core/user"
)

type userDoc struct {
	ID         string    `bson:"_id"`
	SchoolID   string    `bson:"school_id"`
	Name       string    `bson:"name"`
	Email      string    `bson:"email,omitempty"`
	Role       string    `bson:"role"`
	IsActive   bool      `bson:"is_active"`
	AccessCode string    `bson:"access_code,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
	LastLogin  time.Time `bson:"last_login,omitempty"`
}

func toUserDoc(usr user.User) userDoc {
	return userDoc{
		ID:         usr.ID,
		SchoolID:   usr.SchoolID,
		Name:       usr.Name,
		Email:      usr.Email,
		Role:       usr.Role,
		IsActive:   usr.IsActive,
		AccessCode: usr.AccessCode,
		CreatedAt:  usr.CreatedAt.UTC(),
		UpdatedAt:  usr.UpdatedAt.UTC(),
		LastLogin:  usr.LastLogin.UTC(),
	}
}

func (doc userDoc) user() user.User {
	return user.User{
		ID:         doc.ID,
		SchoolID:   doc.SchoolID,
		Name:       doc.Name,
		Email:      doc.Email,
		Role:       doc.Role,
		IsActive:   doc.IsActive,
		AccessCode: doc.AccessCode,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
		LastLogin:  doc.LastLogin.UTC(),
	}
}

type userRepository struct {
	users *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{users: db.Collection(usersCollection)}
}

func (repo userRepository) trapErr(err error, msg string) error {
	switch {
	case err == mongo.ErrNoDocuments:
		return user.ErrNotFound
	case duplicateKey(err, "email"):
		return user.ErrEmailExists
	case duplicateKey(err, "access_code"):
		return user.ErrCodeExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	filter := bson.M{"email": email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}
	n, err := repo.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	doc := toUserDoc(usr)
	if _, err := repo.users.InsertOne(ctx, doc); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return doc.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.Email != "":
		q = bson.M{"email": filter.Email}
	case filter.AccessCode != "":
		q = bson.M{"access_code": filter.AccessCode}
		if filter.Role != "" {
			q["role"] = filter.Role
		}
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	if err := repo.users.FindOne(ctx, q).Decode(&doc); err != nil {
		return user.User{}, repo.trapErr(err, "finding user")
	}
	return doc.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	q := bson.M{}
	if filter != nil {
		if filter.SchoolID != "" {
			q["school_id"] = filter.SchoolID
		}
		if len(filter.Roles) > 0 {
			q["role"] = bson.M{"$in": filter.Roles}
		}
		if filter.IsActive != nil {
			q["is_active"] = *filter.IsActive
		}
	}

	cursor, err := repo.users.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := toUserDoc(usr)
	set := bson.M{
		"name":       doc.Name,
		"is_active":  doc.IsActive,
		"updated_at": doc.UpdatedAt,
	}
	unset := bson.M{}
	for field, val := range map[string]interface{}{
		"email":       doc.Email,
		"access_code": doc.AccessCode,
		"last_login":  doc.LastLogin,
	} {
		if isZero(val) {
			unset[field] = ""
		} else {
			set[field] = val
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var updated userDoc
	err := repo.users.FindOneAndUpdate(ctx, bson.M{"_id": usr.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	return updated.user(), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := repo.users.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(res.DeletedCount), nil
}

func isZero(val interface{}) bool {
	switch v := val.(type) {
	case string:
		return v == ""
	case time.Time:
		return v.IsZero()
	}
	return val == nil
}
