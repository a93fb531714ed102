package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memCarts mimics the conditional writes of the Mongo cart repository.
type memCarts struct {
	m        sync.Mutex
	carts    map[primitive.ObjectID]domain.Cart
	replaces int
	// conflictAlways makes every replace lose the race.
	conflictAlways bool
	err            error
	// getHook runs at the start of GetCart; a non-nil result is returned.
	getHook func(ctx context.Context) error
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[primitive.ObjectID]domain.Cart{}}
}

func cloneCart(c domain.Cart) *domain.Cart {
	c.Items = append([]domain.CartItem{}, c.Items...)
	return &c
}

func (m *memCarts) GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	if m.getHook != nil {
		if err := m.getHook(ctx); err != nil {
			return nil, err
		}
	}
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (m *memCarts) CreateCart(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.carts[cart.UserID]; ok {
		return repository.ErrVersionConflict
	}
	cart.ID = primitive.NewObjectID()
	cart.Version = 1
	m.carts[cart.UserID] = *cloneCart(*cart)
	return nil
}

func (m *memCarts) ReplaceCart(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.replaces++
	stored, ok := m.carts[cart.UserID]
	if m.conflictAlways || !ok || stored.Version != cart.Version {
		return repository.ErrVersionConflict
	}
	cart.Version++
	m.carts[cart.UserID] = *cloneCart(*cart)
	return nil
}

func (m *memCarts) DeleteCart(_ context.Context, userID primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.carts[userID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

func (m *memCarts) FindUsersWithProduct(_ context.Context, productID primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var users []primitive.ObjectID
	for userID, c := range m.carts {
		if c.HasItem(productID) {
			users = append(users, userID)
		}
	}
	return users, nil
}

func (m *memCarts) stored(userID primitive.ObjectID) (domain.Cart, bool) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[userID]
	return c, ok
}

type memProducts struct {
	m         sync.Mutex
	products  map[primitive.ObjectID]domain.Product
	updateErr error
}

func newMemProducts() *memProducts {
	return &memProducts{products: map[primitive.ObjectID]domain.Product{}}
}

func (m *memProducts) add(price float64, owner primitive.ObjectID) *domain.Product {
	p := &domain.Product{Name: "p", Price: price, Owner: owner, Images: []string{"http://x/a.png"}, Category: domain.CategoryGrocery}
	_ = m.Create(context.Background(), p)
	return p
}

func (m *memProducts) setPrice(id primitive.ObjectID, price float64) {
	m.m.Lock()
	defer m.m.Unlock()
	p := m.products[id]
	p.Price = price
	m.products[id] = p
}

func (m *memProducts) Create(_ context.Context, p *domain.Product) error {
	m.m.Lock()
	defer m.m.Unlock()
	p.ID = primitive.NewObjectID()
	p.Version = 1
	m.products[p.ID] = *p
	return nil
}

func (m *memProducts) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (m *memProducts) GetSummaries(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.ProductSummary, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := map[primitive.ObjectID]domain.ProductSummary{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = domain.ProductSummary{ID: p.ID, Name: p.Name, Price: p.Price, Images: p.Images}
		}
	}
	return out, nil
}

func (m *memProducts) List(_ context.Context, f domain.ProductFilter) ([]*domain.Product, int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var all []*domain.Product
	for _, p := range m.products {
		if f.Category != "" && string(p.Category) != f.Category {
			continue
		}
		p := p
		all = append(all, &p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Price < all[j].Price })
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memProducts) Update(_ context.Context, id primitive.ObjectID, version int64, patch domain.ProductPatch, now time.Time) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	if p.Version != version {
		return nil, repository.ErrVersionConflict
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Brand != nil {
		p.Brand = *patch.Brand
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Images != nil {
		p.Images = patch.Images
	}
	p.Version++
	p.UpdatedAt = now
	m.products[id] = p
	return &p, nil
}

func (m *memProducts) Delete(_ context.Context, id primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

type memReviews struct {
	m       sync.Mutex
	reviews map[primitive.ObjectID]domain.Review
}

func newMemReviews() *memReviews {
	return &memReviews{reviews: map[primitive.ObjectID]domain.Review{}}
}

func (m *memReviews) Create(_ context.Context, r *domain.Review) error {
	m.m.Lock()
	defer m.m.Unlock()
	for _, existing := range m.reviews {
		if existing.UserID == r.UserID && existing.ProductID == r.ProductID {
			return repository.ErrDuplicateKey
		}
	}
	r.ID = primitive.NewObjectID()
	r.CreatedAt = time.Now()
	m.reviews[r.ID] = *r
	return nil
}

func (m *memReviews) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Review, error) {
	m.m.Lock()
	defer m.m.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	return &r, nil
}

func (m *memReviews) ListByProduct(_ context.Context, productID primitive.ObjectID) ([]*domain.Review, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := []*domain.Review{}
	for _, r := range m.reviews {
		if r.ProductID == productID {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *memReviews) UpdateOwned(_ context.Context, id, userID primitive.ObjectID, patch domain.ReviewPatch, now time.Time) (*domain.Review, error) {
	m.m.Lock()
	defer m.m.Unlock()
	r, ok := m.reviews[id]
	if !ok || r.UserID != userID {
		return nil, repository.ErrReviewNotFound
	}
	if patch.Rating != nil {
		r.Rating = *patch.Rating
	}
	if patch.Comment != nil {
		r.Comment = *patch.Comment
	}
	r.UpdatedAt = now
	m.reviews[id] = r
	return &r, nil
}

func (m *memReviews) DeleteOwned(_ context.Context, id, userID primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	r, ok := m.reviews[id]
	if !ok || r.UserID != userID {
		return repository.ErrReviewNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *memReviews) DeleteByProduct(_ context.Context, productID primitive.ObjectID) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var n int64
	for id, r := range m.reviews {
		if r.ProductID == productID {
			delete(m.reviews, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	m     sync.Mutex
	users map[primitive.ObjectID]domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[primitive.ObjectID]domain.User{}}
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.m.Lock()
	defer m.m.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateKey
		}
	}
	u.ID = primitive.NewObjectID()
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetSummaries(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.UserSummary, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := map[primitive.ObjectID]domain.UserSummary{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = *u.Summary()
		}
	}
	return out, nil
}

func (m *memUsers) Update(_ context.Context, id primitive.ObjectID, f repository.UserFields) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if f.Email != nil {
		for otherID, other := range m.users {
			if otherID != id && other.Email == *f.Email {
				return nil, repository.ErrDuplicateKey
			}
		}
		u.Email = *f.Email
	}
	if f.FullName != nil {
		u.FullName = *f.FullName
	}
	if f.Password != nil {
		u.Password = *f.Password
	}
	if f.Avatar != nil {
		u.Avatar = *f.Avatar
	}
	if f.CoverImage != nil {
		u.CoverImage = *f.CoverImage
	}
	if f.RefreshToken != nil {
		u.RefreshToken = *f.RefreshToken
	}
	m.users[id] = u
	return &u, nil
}

func (m *memUsers) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := m.Update(ctx, id, repository.UserFields{RefreshToken: &token})
	return err
}

type memCache struct {
	m       sync.Mutex
	views   map[primitive.ObjectID]*domain.CartView
	deletes int
	err     error
}

func newMemCache() *memCache {
	return &memCache{views: map[primitive.ObjectID]*domain.CartView{}}
}

func (m *memCache) Get(_ context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.views[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, userID primitive.ObjectID, v *domain.CartView) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.views[userID] = v
	return nil
}

func (m *memCache) Delete(_ context.Context, userIDs ...primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	for _, id := range userIDs {
		delete(m.views, id)
	}
	return m.err
}

func (m *memCache) has(userID primitive.ObjectID) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.views[userID]
	return ok
}

type fakeUploader struct {
	m        sync.Mutex
	n        int
	deleted  []string
	failOn   int // 1-based upload number that fails, 0 never
	failDel  bool
	uploaded []string
}

func (f *fakeUploader) Upload(_ context.Context, file media.File) (media.Asset, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.n++
	if f.failOn == f.n {
		return media.Asset{}, errors.New("media host down")
	}
	if file.Body != nil {
		_, _ = io.Copy(io.Discard, file.Body)
	}
	id := fmt.Sprintf("%d-%s", f.n, file.Name)
	f.uploaded = append(f.uploaded, id)
	return media.Asset{URL: "https://cdn.example.com/" + id, PublicID: id}, nil
}

func (f *fakeUploader) Delete(_ context.Context, publicID string) error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.failDel {
		return errors.New("media host down")
	}
	f.deleted = append(f.deleted, publicID)
	return nil
}

type fixture struct {
	carts    *memCarts
	products *memProducts
	reviews  *memReviews
	users    *memUsers
	cache    *memCache
	uploader *fakeUploader

	cart    *CartService
	product *ProductService
	review  *ReviewService
}

func newFixture() *fixture {
	f := &fixture{
		carts:    newMemCarts(),
		products: newMemProducts(),
		reviews:  newMemReviews(),
		users:    newMemUsers(),
		cache:    newMemCache(),
		uploader: &fakeUploader{},
	}
	log := logger.Nop()
	f.cart = NewCartService(f.carts, f.products, f.cache, log)
	f.cart.backoff = time.Millisecond
	f.product = NewProductService(f.products, f.reviews, f.users, f.cart, f.uploader, log)
	f.review = NewReviewService(f.reviews, f.products, f.users)
	return f
}

func newIdentity() domain.Identity {
	return domain.Identity{UserID: primitive.NewObjectID(), Email: "u@example.com", FullName: "u"}
}

var errVersionConflictForTest = repository.ErrVersionConflict
