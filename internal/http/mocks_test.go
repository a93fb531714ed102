package http

import (
	"context"
	"io"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type cartCall struct {
	identity  domain.Identity
	productID primitive.ObjectID
	quantity  int
}

type CartServiceMock struct {
	cart  *domain.CartView
	err   error
	calls []cartCall
}

func (m *CartServiceMock) Add(_ context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	m.calls = append(m.calls, cartCall{identity, productID, quantity})
	return m.cart, m.err
}

func (m *CartServiceMock) Get(_ context.Context, identity domain.Identity) (*domain.CartView, error) {
	m.calls = append(m.calls, cartCall{identity: identity})
	return m.cart, m.err
}

func (m *CartServiceMock) UpdateItem(_ context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	m.calls = append(m.calls, cartCall{identity, productID, quantity})
	return m.cart, m.err
}

func (m *CartServiceMock) RemoveItem(_ context.Context, identity domain.Identity, productID primitive.ObjectID) (*domain.CartView, error) {
	m.calls = append(m.calls, cartCall{identity: identity, productID: productID})
	return m.cart, m.err
}

func (m *CartServiceMock) Clear(_ context.Context, identity domain.Identity) error {
	m.calls = append(m.calls, cartCall{identity: identity})
	return m.err
}

type ProductServiceMock struct {
	product     *domain.Product
	page        domain.Page[*domain.Product]
	err         error
	input       service.ProductInput
	filter      domain.ProductFilter
	update      service.ProductUpdate
	imageBodies []string
}

func (m *ProductServiceMock) Create(_ context.Context, _ domain.Identity, in service.ProductInput) (*domain.Product, error) {
	m.input = in
	m.readImages(in.Images)
	return m.product, m.err
}

func (m *ProductServiceMock) readImages(files []media.File) {
	for _, f := range files {
		b, _ := io.ReadAll(f.Body)
		m.imageBodies = append(m.imageBodies, string(b))
	}
}

func (m *ProductServiceMock) Get(_ context.Context, _ primitive.ObjectID) (*domain.ProductDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ProductDetail{Product: m.product}, nil
}

func (m *ProductServiceMock) List(_ context.Context, filter domain.ProductFilter) (domain.Page[*domain.Product], error) {
	m.filter = filter
	return m.page, m.err
}

func (m *ProductServiceMock) Update(_ context.Context, _ domain.Identity, _ primitive.ObjectID, in service.ProductUpdate) (*domain.Product, error) {
	m.update = in
	m.readImages(in.Images)
	return m.product, m.err
}

func (m *ProductServiceMock) Delete(context.Context, domain.Identity, primitive.ObjectID) error {
	return m.err
}

type ReviewServiceMock struct {
	review *domain.Review
	err    error
	rating int
	patch  domain.ReviewPatch
}

func (m *ReviewServiceMock) Create(_ context.Context, _ domain.Identity, _ primitive.ObjectID, rating int, _ string) (*domain.Review, error) {
	m.rating = rating
	return m.review, m.err
}

func (m *ReviewServiceMock) List(context.Context, primitive.ObjectID) ([]*domain.ReviewDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*domain.ReviewDetail{{Review: m.review}}, nil
}

func (m *ReviewServiceMock) Update(_ context.Context, _ domain.Identity, _ primitive.ObjectID, patch domain.ReviewPatch) (*domain.Review, error) {
	m.patch = patch
	return m.review, m.err
}

func (m *ReviewServiceMock) Delete(context.Context, domain.Identity, primitive.ObjectID) error {
	return m.err
}

type UserServiceMock struct {
	user       *domain.User
	pair       auth.TokenPair
	err        error
	registered service.RegisterInput
	avatarBody string
	refreshed  string
	loggedOut  bool
}

func (m *UserServiceMock) Register(_ context.Context, in service.RegisterInput) (*domain.User, error) {
	m.registered = in
	if in.Avatar != nil {
		b, _ := io.ReadAll(in.Avatar.Body)
		m.avatarBody = string(b)
	}
	return m.user, m.err
}

func (m *UserServiceMock) Login(context.Context, string, string) (*domain.User, auth.TokenPair, error) {
	return m.user, m.pair, m.err
}

func (m *UserServiceMock) Logout(context.Context, domain.Identity) error {
	m.loggedOut = true
	return m.err
}

func (m *UserServiceMock) RefreshToken(_ context.Context, token string) (auth.TokenPair, error) {
	m.refreshed = token
	return m.pair, m.err
}

func (m *UserServiceMock) ChangePassword(context.Context, domain.Identity, string, string) error {
	return m.err
}

// CurrentUser backs the auth middleware; it never returns m.err so handler
// errors can be tested behind authentication.
func (m *UserServiceMock) CurrentUser(_ context.Context, identity domain.Identity) (*domain.User, error) {
	if m.user == nil || m.user.ID != identity.UserID {
		return nil, apperr.NotFound("user not found")
	}
	return m.user, nil
}

func (m *UserServiceMock) UpdateAccount(context.Context, domain.Identity, string, string) (*domain.User, error) {
	return m.user, m.err
}

func (m *UserServiceMock) UpdateAvatar(_ context.Context, _ domain.Identity, f *media.File) (*domain.User, error) {
	if f == nil {
		return nil, apperr.InvalidInput("avatar file is missing")
	}
	return m.user, m.err
}

func (m *UserServiceMock) UpdateCoverImage(context.Context, domain.Identity, *media.File) (*domain.User, error) {
	return m.user, m.err
}

type TokenVerifierMock struct {
	tokens map[string]domain.Identity
}

func (m TokenVerifierMock) VerifyAccessToken(token string) (domain.Identity, error) {
	id, ok := m.tokens[token]
	if !ok {
		return domain.Identity{}, apperr.Auth("invalid access token")
	}
	return id, nil
}
