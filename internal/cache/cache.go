package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartCache holds rendered cart views keyed by owner.
type CartCache interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error)
	Set(ctx context.Context, userID primitive.ObjectID, cart *domain.CartView) error
	Delete(ctx context.Context, userIDs ...primitive.ObjectID) error
}

var ErrCacheMiss = errors.New("cache miss")
