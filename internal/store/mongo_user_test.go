package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teamboard/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("GetByEmail found", func(mt *mtest.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u-1"},
			{Key: "email", Value: "test@example.com"},
			{Key: "name", Value: "Test User"},
			{Key: "team", Value: "Team A"},
			{Key: "role", Value: "user"},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		}))

		user, err := NewMongoUserRepository(mt.Coll).GetByEmail(context.Background(), "test@example.com")
		if err != nil {
			mt.Fatalf("GetByEmail: %v", err)
		}
		if user.ID != "u-1" || user.Email != "test@example.com" || user.Role != types.RoleUser {
			mt.Fatalf("unexpected user: %+v", user)
		}
		if !user.CreatedAt.Equal(now) {
			mt.Fatalf("created_at = %v, want %v", user.CreatedAt, now)
		}
	})

	mt.Run("GetCredentialsByEmail not found", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := NewMongoUserRepository(mt.Coll).GetCredentialsByEmail(context.Background(), "missing@example.com")
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("Create assigns id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		created, err := NewMongoUserRepository(mt.Coll).Create(context.Background(), types.User{
			Email: "test@example.com",
			Name:  "Test User",
			Role:  types.RoleUser,
		})
		if err != nil {
			mt.Fatalf("Create: %v", err)
		}
		if created.ID == "" || created.CreatedAt.IsZero() {
			mt.Fatalf("expected id and timestamps, got %+v", created)
		}
	})

	mt.Run("Create duplicate email", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: users index: users_email_unique",
		}))

		_, err := NewMongoUserRepository(mt.Coll).Create(context.Background(), types.User{Email: "test@example.com"})
		if !errors.Is(err, ErrDuplicate) {
			mt.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	mt.Run("UpdateRefreshToken", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := NewMongoUserRepository(mt.Coll).UpdateRefreshToken(context.Background(), "u-1", "token"); err != nil {
			mt.Fatalf("UpdateRefreshToken: %v", err)
		}
	})

	mt.Run("UpdateRefreshToken unknown id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := NewMongoUserRepository(mt.Coll).UpdateRefreshToken(context.Background(), "missing", "token")
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("EnsureIndexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := NewMongoUserRepository(mt.Coll).EnsureIndexes(context.Background()); err != nil {
			mt.Fatalf("EnsureIndexes: %v", err)
		}
	})
}
