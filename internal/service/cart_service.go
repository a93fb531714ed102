package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

const cartLoadTimeout = 5 * time.Second

type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	cache    cache.CartCache
	log      *slog.Logger
	sfg      singleflight.Group // Prevents cache stampede

	now         func() time.Time
	attempts    int
	backoff     time.Duration
	loadTimeout time.Duration
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository, cache cache.CartCache, log *slog.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		cache:    cache,
		log:      log,
		now:         time.Now,
		attempts:    maxCartAttempts,
		backoff:     cartRetryBackoff,
		loadTimeout: cartLoadTimeout,
	}
}

// Add puts quantity of productID into the caller's cart, creating the cart on
// first use and merging into an existing line item.
func (s *CartService) Add(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	if err := validate.All(validate.RangeInt("quantity", quantity, 1, domain.MaxItemQuantity)); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal("failed to load product", err)
	}

	return s.mutate(ctx, identity.UserID, func(cart *domain.Cart, _ bool) (bool, error) {
		if err := cart.AddItem(productID, quantity, s.now()); err != nil {
			return false, apperr.InvalidInput(fmt.Sprintf("quantity of a cart item cannot exceed %d", domain.MaxItemQuantity))
		}
		return true, nil
	})
}

// Get returns the caller's cart. A user without a cart document gets NotFound;
// a cart drained to zero items still exists.
func (s *CartService) Get(ctx context.Context, identity domain.Identity) (*domain.CartView, error) {
	userID := identity.UserID
	// Concurrent misses for one user share a single load. The load runs
	// detached from any one caller; each caller waits on its own ctx.
	ch := s.sfg.DoChan(userID.Hex(), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.loadView(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CartView), nil
	}
}

func (s *CartService) loadView(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	view, err := s.cache.Get(ctx, userID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WarnContext(ctx, "cache get failed", "user_id", userID.Hex(), "error", err)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, apperr.NotFound("cart not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load cart", err)
	}

	products, err := s.products.GetSummaries(ctx, cart.ProductIDs())
	if err != nil {
		return nil, apperr.Internal("failed to load cart products", err)
	}
	view = cart.View(products)

	go func() {
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, view); err != nil {
			s.log.Warn("cache set failed", "user_id", userID.Hex(), "error", err)
		}
	}()

	return view, nil
}

// UpdateItem sets the quantity of an existing line item.
func (s *CartService) UpdateItem(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	if err := validate.All(validate.RangeInt("quantity", quantity, 1, domain.MaxItemQuantity)); err != nil {
		return nil, err
	}

	return s.mutate(ctx, identity.UserID, func(cart *domain.Cart, exists bool) (bool, error) {
		if !exists {
			return false, apperr.NotFound("cart not found")
		}
		if !cart.SetQuantity(productID, quantity) {
			return false, apperr.NotFound("product not found in cart")
		}
		return true, nil
	})
}

// RemoveItem drops productID from the cart. Removing something that is not
// there is not an error, and a user without a cart gets an empty view back.
func (s *CartService) RemoveItem(ctx context.Context, identity domain.Identity, productID primitive.ObjectID) (*domain.CartView, error) {
	return s.mutate(ctx, identity.UserID, func(cart *domain.Cart, exists bool) (bool, error) {
		if !exists {
			return false, nil
		}
		return cart.RemoveItem(productID), nil
	})
}

// Clear deletes the caller's cart document.
func (s *CartService) Clear(ctx context.Context, identity domain.Identity) error {
	err := s.carts.DeleteCart(ctx, identity.UserID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return apperr.Internal("failed to clear cart", err)
	}
	s.invalidate(identity.UserID)
	return nil
}

// PurgeProduct removes a deleted product from every cart holding it.
func (s *CartService) PurgeProduct(ctx context.Context, productID primitive.ObjectID) error {
	users, err := s.carts.FindUsersWithProduct(ctx, productID)
	if err != nil {
		return apperr.Internal("failed to find carts with product", err)
	}

	var errs []error
	for _, userID := range users {
		_, err := s.mutate(ctx, userID, func(cart *domain.Cart, exists bool) (bool, error) {
			if !exists {
				return false, nil
			}
			return cart.RemoveItem(productID), nil
		})
		if err != nil {
			s.log.ErrorContext(ctx, "failed to purge product from cart", "user_id", userID.Hex(), "product_id", productID.Hex(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.Internal("failed to remove product from carts", errors.Join(errs...))
	}
	return nil
}

// InvalidateProduct drops cached views of every cart holding productID.
func (s *CartService) InvalidateProduct(ctx context.Context, productID primitive.ObjectID) {
	users, err := s.carts.FindUsersWithProduct(ctx, productID)
	if err != nil {
		s.log.WarnContext(ctx, "failed to find carts with product", "product_id", productID.Hex(), "error", err)
		return
	}
	s.invalidate(users...)
}

// mutate is the read-modify-write cycle behind every cart change. fn edits the
// loaded cart (or a fresh one when exists is false) and reports whether it
// changed anything. Totals are recomputed from live prices before the
// conditional write; a version conflict restarts the cycle.
func (s *CartService) mutate(ctx context.Context, userID primitive.ObjectID, fn func(cart *domain.Cart, exists bool) (bool, error)) (*domain.CartView, error) {
	var view *domain.CartView

	err := retryOnConflict(ctx, s.attempts, s.backoff, func() error {
		cart, err := s.carts.GetCart(ctx, userID)
		exists := err == nil
		if errors.Is(err, repository.ErrCartNotFound) {
			cart = domain.NewCart(userID, s.now())
		} else if err != nil {
			return apperr.Internal("failed to load cart", err)
		}

		changed, err := fn(cart, exists)
		if err != nil {
			return err
		}
		if !exists && !changed {
			view = cart.View(nil)
			return nil
		}

		products, err := s.products.GetSummaries(ctx, cart.ProductIDs())
		if err != nil {
			return apperr.Internal("failed to load cart products", err)
		}
		prices := make(map[primitive.ObjectID]float64, len(products))
		for id, p := range products {
			prices[id] = p.Price
		}

		itemsBefore, totalBefore := len(cart.Items), cart.TotalPrice
		cart.Recompute(prices)
		changed = changed || len(cart.Items) != itemsBefore || cart.TotalPrice != totalBefore

		switch {
		case !exists:
			err = s.carts.CreateCart(ctx, cart)
		case changed:
			cart.UpdatedAt = s.now()
			err = s.carts.ReplaceCart(ctx, cart)
		}
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			return apperr.Internal("failed to save cart", err)
		}

		view = cart.View(products)
		return nil
	})

	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		s.log.WarnContext(ctx, "cart update gave up after conflicts", "user_id", userID.Hex(), "attempts", s.attempts)
		return nil, apperr.Wrap(apperr.KindConflict, "cart was modified concurrently, please retry", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, apperr.Internal("request cancelled", err)
	case err != nil:
		return nil, err
	}

	s.invalidate(userID)
	return view, nil
}

func (s *CartService) invalidate(userIDs ...primitive.ObjectID) {
	if len(userIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userIDs...); err != nil {
		s.log.Warn("cache invalidate failed", "users", len(userIDs), "error", err)
	}
}
