package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrProductNotFound = errors.New("product not found")
	ErrReviewNotFound  = errors.New("review not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrVersionConflict = errors.New("document was modified concurrently")
	ErrDuplicateKey    = errors.New("duplicate key")
)

// CartRepository stores one cart document per user. Writes are conditional on
// the version read by the caller.
type CartRepository interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart *domain.Cart) error
	ReplaceCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, userID primitive.ObjectID) error
	FindUsersWithProduct(ctx context.Context, productID primitive.ObjectID) ([]primitive.ObjectID, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	GetSummaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.ProductSummary, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, version int64, patch domain.ProductPatch, now time.Time) (*domain.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Review, error)
	ListByProduct(ctx context.Context, productID primitive.ObjectID) ([]*domain.Review, error)
	UpdateOwned(ctx context.Context, id, userID primitive.ObjectID, patch domain.ReviewPatch, now time.Time) (*domain.Review, error)
	DeleteOwned(ctx context.Context, id, userID primitive.ObjectID) error
	DeleteByProduct(ctx context.Context, productID primitive.ObjectID) (int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetSummaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.UserSummary, error)
	Update(ctx context.Context, id primitive.ObjectID, fields UserFields) (*domain.User, error)
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
}

// UserFields is a partial user update; nil means unchanged. An empty
// RefreshToken unsets the stored token.
type UserFields struct {
	FullName     *string
	Email        *string
	Password     *string
	Avatar       *string
	CoverImage   *string
	RefreshToken *string
}
