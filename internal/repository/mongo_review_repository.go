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

type mongoReviewRepository struct {
	collection *mongo.Collection
}

func NewMongoReviewRepository(db *mongo.Database) ReviewRepository {
	return &mongoReviewRepository{
		collection: db.Collection("reviews"),
	}
}

// Create relies on the unique (user_id, product_id) index; a second review by
// the same user for the same product reports ErrDuplicateKey.
func (m *mongoReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	now := time.Now()
	review.ID = primitive.NewObjectID()
	review.CreatedAt = now
	review.UpdatedAt = now

	if _, err := m.collection.InsertOne(ctx, review); err != nil {
		review.ID = primitive.NilObjectID
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

func (m *mongoReviewRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Review, error) {
	var review domain.Review
	if err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&review); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

func (m *mongoReviewRepository) ListByProduct(ctx context.Context, productID primitive.ObjectID) ([]*domain.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := m.collection.Find(ctx, bson.M{"product_id": productID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer cursor.Close(ctx)

	reviews := []*domain.Review{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %w", err)
	}
	return reviews, nil
}

// UpdateOwned updates the review only when userID authored it. A review that
// does not exist or belongs to someone else reports ErrReviewNotFound.
func (m *mongoReviewRepository) UpdateOwned(ctx context.Context, id, userID primitive.ObjectID, patch domain.ReviewPatch, now time.Time) (*domain.Review, error) {
	set := bson.M{"updated_at": now}
	if patch.Rating != nil {
		set["rating"] = *patch.Rating
	}
	if patch.Comment != nil {
		set["comment"] = *patch.Comment
	}

	filter := bson.M{"_id": id, "user_id": userID}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var review domain.Review
	err := m.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	return &review, nil
}

func (m *mongoReviewRepository) DeleteOwned(ctx context.Context, id, userID primitive.ObjectID) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (m *mongoReviewRepository) DeleteByProduct(ctx context.Context, productID primitive.ObjectID) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{"product_id": productID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete product reviews: %w", err)
	}
	return result.DeletedCount, nil
}
