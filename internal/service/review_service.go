package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewService struct {
	reviews  repository.ReviewRepository
	products repository.ProductRepository
	users    repository.UserRepository
	now      func() time.Time
}

func NewReviewService(reviews repository.ReviewRepository, products repository.ProductRepository, users repository.UserRepository) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		products: products,
		users:    users,
		now:      time.Now,
	}
}

// Create adds the caller's review of productID. Each user may review a
// product once.
func (s *ReviewService) Create(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, rating int, comment string) (*domain.Review, error) {
	if err := validate.All(validate.RangeInt("rating", rating, 1, 5)); err != nil {
		return nil, err
	}
	if err := s.productExists(ctx, productID); err != nil {
		return nil, err
	}

	review := &domain.Review{
		ProductID: productID,
		UserID:    identity.UserID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.Conflict("you have already reviewed this product")
		}
		return nil, apperr.Internal("failed to create review", err)
	}
	return review, nil
}

// List returns the reviews of productID, newest first, with authors populated.
func (s *ReviewService) List(ctx context.Context, productID primitive.ObjectID) ([]*domain.ReviewDetail, error) {
	if err := s.productExists(ctx, productID); err != nil {
		return nil, err
	}

	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("failed to list reviews", err)
	}

	authorIDs := make([]primitive.ObjectID, len(reviews))
	for i, r := range reviews {
		authorIDs[i] = r.UserID
	}
	authors, err := s.users.GetSummaries(ctx, authorIDs)
	if err != nil {
		return nil, apperr.Internal("failed to load review authors", err)
	}

	out := make([]*domain.ReviewDetail, len(reviews))
	for i, r := range reviews {
		out[i] = &domain.ReviewDetail{Review: r}
		if a, ok := authors[r.UserID]; ok {
			out[i].Author = &a
		}
	}
	return out, nil
}

func (s *ReviewService) Update(ctx context.Context, identity domain.Identity, id primitive.ObjectID, patch domain.ReviewPatch) (*domain.Review, error) {
	if patch.Rating == nil && patch.Comment == nil {
		return nil, apperr.InvalidInput("nothing to update")
	}
	if patch.Rating != nil {
		if err := validate.All(validate.RangeInt("rating", *patch.Rating, 1, 5)); err != nil {
			return nil, err
		}
	}
	if patch.Comment != nil {
		c := strings.TrimSpace(*patch.Comment)
		patch.Comment = &c
	}
	if err := s.authorize(ctx, identity, id); err != nil {
		return nil, err
	}

	review, err := s.reviews.UpdateOwned(ctx, id, identity.UserID, patch, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return nil, apperr.NotFound("review not found")
		}
		return nil, apperr.Internal("failed to update review", err)
	}
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, identity domain.Identity, id primitive.ObjectID) error {
	if err := s.authorize(ctx, identity, id); err != nil {
		return err
	}

	if err := s.reviews.DeleteOwned(ctx, id, identity.UserID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return apperr.NotFound("review not found")
		}
		return apperr.Internal("failed to delete review", err)
	}
	return nil
}

// authorize checks the review exists and was written by the caller.
func (s *ReviewService) authorize(ctx context.Context, identity domain.Identity, id primitive.ObjectID) error {
	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return apperr.NotFound("review not found")
		}
		return apperr.Internal("failed to load review", err)
	}
	if review.UserID != identity.UserID {
		return apperr.Forbidden("you can only modify your own reviews")
	}
	return nil
}

func (s *ReviewService) productExists(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return apperr.NotFound("product not found")
		}
		return apperr.Internal("failed to load product", err)
	}
	return nil
}
