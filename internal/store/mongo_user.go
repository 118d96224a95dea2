package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamboard/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsersCollection is the collection user documents live in.
const UsersCollection = "users"

// profileProjection hides credential fields from default reads.
var profileProjection = bson.D{
	{Key: "password_hash", Value: 0},
	{Key: "refresh_token", Value: 0},
}

// MongoUserRepository handles persistence for users in MongoDB.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

// EnsureIndexes creates the unique email index the repository relies on
// to reject concurrent duplicate registrations.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, options.FindOne().SetProjection(profileProjection))
}

// GetByEmail loads a user without credential fields.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, options.FindOne().SetProjection(profileProjection))
}

// GetCredentialsByEmail loads a user including the password hash.
func (r *MongoUserRepository) GetCredentialsByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, options.FindOne())
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *MongoUserRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "refresh_token", Value: token},
		{Key: "updated_at", Value: time.Now().UTC().Truncate(time.Millisecond)},
	}}}
	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.D, opts *options.FindOneOptions) (types.User, error) {
	var user types.User
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
