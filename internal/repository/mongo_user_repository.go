package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{
		collection: db.Collection("users"),
	}
}

// Create relies on the unique email index; a taken email reports ErrDuplicateKey.
func (m *mongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := m.collection.InsertOne(ctx, user); err != nil {
		user.ID = primitive.NilObjectID
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (m *mongoUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	if err := m.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (m *mongoUserRepository) GetSummaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.UserSummary, error) {
	out := make(map[primitive.ObjectID]domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	opts := options.Find().SetProjection(bson.M{"full_name": 1, "email": 1})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []domain.UserSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, s := range summaries {
		out[s.ID] = s
	}
	return out, nil
}

func (m *mongoUserRepository) Update(ctx context.Context, id primitive.ObjectID, fields UserFields) (*domain.User, error) {
	set := bson.M{"updated_at": time.Now()}
	unset := bson.M{}
	if fields.FullName != nil {
		set["full_name"] = *fields.FullName
	}
	if fields.Email != nil {
		set["email"] = *fields.Email
	}
	if fields.Password != nil {
		set["password"] = *fields.Password
	}
	if fields.Avatar != nil {
		set["avatar"] = *fields.Avatar
	}
	if fields.CoverImage != nil {
		set["cover_image"] = *fields.CoverImage
	}
	if fields.RefreshToken != nil {
		if *fields.RefreshToken == "" {
			unset["refresh_token"] = 1
		} else {
			set["refresh_token"] = *fields.RefreshToken
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user domain.User
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// SetRefreshToken stores token, or removes the stored token when it is empty.
func (m *mongoUserRepository) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := m.Update(ctx, id, UserFields{RefreshToken: &token})
	return err
}
