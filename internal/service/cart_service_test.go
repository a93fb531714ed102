package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCartService_WorkedExample(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p1 := f.products.add(10, primitive.NewObjectID())

	view, err := f.cart.Add(ctx, user, p1.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, 20.0, view.TotalPrice)
	assert.Equal(t, p1.Name, view.Items[0].Product.Name)

	view, err = f.cart.Add(ctx, user, p1.ID, 3)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, 50.0, view.TotalPrice)

	view, err = f.cart.UpdateItem(ctx, user, p1.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Items[0].Quantity)
	assert.Equal(t, 10.0, view.TotalPrice)

	view, err = f.cart.RemoveItem(ctx, user, p1.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.NotNil(t, view.Items)
	assert.Equal(t, 0.0, view.TotalPrice)

	// a drained cart still exists
	view, err = f.cart.Get(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestCartService_AddValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(10, primitive.NewObjectID())

	_, err := f.cart.Add(ctx, user, p.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.cart.Add(ctx, user, primitive.NewObjectID(), 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, ok := f.carts.stored(user.UserID)
	assert.False(t, ok, "failed adds must not create a cart")
}

func TestCartService_OrderAndTotals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	owner := primitive.NewObjectID()
	a, b, c := f.products.add(1.10, owner), f.products.add(2.20, owner), f.products.add(3.30, owner)

	for _, p := range []*domain.Product{a, b, c} {
		_, err := f.cart.Add(ctx, user, p.ID, 1)
		require.NoError(t, err)
	}
	view, err := f.cart.Add(ctx, user, a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 8.80, view.TotalPrice)

	view, err = f.cart.RemoveItem(ctx, user, b.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, a.ID, view.Items[0].Product.ID)
	assert.Equal(t, c.ID, view.Items[1].Product.ID)
	assert.Equal(t, 6.60, view.TotalPrice)
}

func TestCartService_LivePricing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	owner := primitive.NewObjectID()
	a, b := f.products.add(10, owner), f.products.add(5, owner)

	_, err := f.cart.Add(ctx, user, a.ID, 1)
	require.NoError(t, err)

	f.products.setPrice(a.ID, 12)
	view, err := f.cart.Add(ctx, user, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 17.0, view.TotalPrice, "every line item is priced at the current catalog price")
}

func TestCartService_RemoveAbsentItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(4, primitive.NewObjectID())

	_, err := f.cart.Add(ctx, user, p.ID, 2)
	require.NoError(t, err)
	before, _ := f.carts.stored(user.UserID)

	view, err := f.cart.RemoveItem(ctx, user, primitive.NewObjectID())
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 8.0, view.TotalPrice)

	after, _ := f.carts.stored(user.UserID)
	assert.Equal(t, before.Version, after.Version, "no-op removal must not write")
}

func TestCartService_RemoveWithoutCart(t *testing.T) {
	f := newFixture()
	user := newIdentity()

	view, err := f.cart.RemoveItem(context.Background(), user, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, 0.0, view.TotalPrice)

	_, ok := f.carts.stored(user.UserID)
	assert.False(t, ok)
}

func TestCartService_UpdateItemNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(4, primitive.NewObjectID())

	_, err := f.cart.UpdateItem(ctx, user, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.cart.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)

	_, err = f.cart.UpdateItem(ctx, user, primitive.NewObjectID(), 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.cart.UpdateItem(ctx, user, p.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestCartService_GetAndClear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(4, primitive.NewObjectID())

	_, err := f.cart.Get(ctx, user)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.cart.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.cart.Clear(ctx, user))
	_, err = f.cart.Get(ctx, user)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// idempotent
	require.NoError(t, f.cart.Clear(ctx, user))
}

func TestCartService_GetUsesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()

	cached := &domain.CartView{UserID: user.UserID, Items: []domain.CartLine{}, TotalPrice: 99}
	require.NoError(t, f.cache.Set(ctx, user.UserID, cached))

	view, err := f.cart.Get(ctx, user)
	require.NoError(t, err)
	assert.Same(t, cached, view)
}

func TestCartService_GetSharedLoadOutlivesCancelledCaller(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(4, primitive.NewObjectID())
	_, err := f.cart.Add(ctx, user, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(ctx, user.UserID))

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	f.carts.getHook = func(ctx context.Context) error {
		entered <- struct{}{}
		<-release
		return ctx.Err()
	}

	first, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.cart.Get(first, user)
		firstErr <- err
	}()
	<-entered

	type result struct {
		view *domain.CartView
		err  error
	}
	second := make(chan result, 1)
	go func() {
		view, err := f.cart.Get(ctx, user)
		second <- result{view, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.view.Items, 1)
	assert.Equal(t, 2, res.view.Items[0].Quantity)
}

func TestCartService_CacheErrorsDoNotFailRequests(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(3, primitive.NewObjectID())
	f.cache.err = errors.New("redis down")

	_, err := f.cart.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)

	view, err := f.cart.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3.0, view.TotalPrice)
}

func TestCartService_MutationInvalidatesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(3, primitive.NewObjectID())

	require.NoError(t, f.cache.Set(ctx, user.UserID, &domain.CartView{UserID: user.UserID}))
	_, err := f.cart.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)
	assert.False(t, f.cache.has(user.UserID))
}

func TestCartService_ConcurrentAddsAllPersist(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	owner := primitive.NewObjectID()

	products := make([]*domain.Product, 4)
	for i := range products {
		products[i] = f.products.add(float64(i+1), owner)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(products))
	for i, p := range products {
		wg.Add(1)
		go func(i int, id primitive.ObjectID) {
			defer wg.Done()
			_, errs[i] = f.cart.Add(ctx, user, id, i+1)
		}(i, p.ID)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, ok := f.carts.stored(user.UserID)
	require.True(t, ok)
	require.Len(t, stored.Items, len(products))
	want := 0.0
	for i := range products {
		want += float64((i + 1) * (i + 1))
	}
	assert.Equal(t, want, stored.TotalPrice)
}

func TestCartService_ConcurrentMergesSumQuantities(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(2, primitive.NewObjectID())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cart.Add(ctx, user, p.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, _ := f.carts.stored(user.UserID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 3, stored.Items[0].Quantity)
	assert.Equal(t, 6.0, stored.TotalPrice)
}

func TestCartService_ConflictExhaustion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(2, primitive.NewObjectID())

	_, err := f.cart.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)

	f.carts.conflictAlways = true
	_, err = f.cart.Add(ctx, user, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, maxCartAttempts, f.carts.replaces)
}

func TestCartService_PurgeProduct(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := primitive.NewObjectID()
	doomed, kept := f.products.add(5, owner), f.products.add(1, owner)
	u1, u2 := newIdentity(), newIdentity()

	for _, u := range []domain.Identity{u1, u2} {
		_, err := f.cart.Add(ctx, u, doomed.ID, 2)
		require.NoError(t, err)
	}
	_, err := f.cart.Add(ctx, u1, kept.ID, 3)
	require.NoError(t, err)

	require.NoError(t, f.products.Delete(ctx, doomed.ID))
	require.NoError(t, f.cart.PurgeProduct(ctx, doomed.ID))

	c1, _ := f.carts.stored(u1.UserID)
	require.Len(t, c1.Items, 1)
	assert.Equal(t, kept.ID, c1.Items[0].ProductID)
	assert.Equal(t, 3.0, c1.TotalPrice)

	c2, _ := f.carts.stored(u2.UserID)
	assert.Empty(t, c2.Items)
	assert.Equal(t, 0.0, c2.TotalPrice)
}

func TestRetryOnConflict_StopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retryOnConflict(context.Background(), 5, 0, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflict_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retryOnConflict(ctx, 5, 0, func() error {
		calls++
		return errVersionConflictForTest
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCartService_AddQuantityLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := newIdentity()
	p := f.products.add(2, primitive.NewObjectID())

	_, err := f.cart.Add(ctx, user, p.ID, math.MaxInt)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	_, err = f.cart.UpdateItem(ctx, user, p.ID, domain.MaxItemQuantity+1)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.cart.Add(ctx, user, p.ID, domain.MaxItemQuantity)
	require.NoError(t, err)

	_, err = f.cart.Add(ctx, user, p.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	stored, ok := f.carts.stored(user.UserID)
	require.True(t, ok)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, domain.MaxItemQuantity, stored.Items[0].Quantity)
	assert.Equal(t, float64(2*domain.MaxItemQuantity), stored.TotalPrice)
}
