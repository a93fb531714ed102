package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var productSortKeys = []string{"price", "-price", "name", "-name", "createdAt", "-createdAt"}

// ProductInput is a new catalog entry; Images are uploaded before saving.
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	Category    string
	Brand       string
	Stock       int
	Images      []media.File
}

// ProductUpdate is a partial edit; nil fields are unchanged. Non-empty Images
// replace the product's current images.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *string
	Brand       *string
	Stock       *int
	Images      []media.File
}

func (u ProductUpdate) patch() domain.ProductPatch {
	patch := domain.ProductPatch{
		Name:        u.Name,
		Description: u.Description,
		Price:       u.Price,
		Brand:       u.Brand,
		Stock:       u.Stock,
	}
	if u.Category != nil {
		c := domain.Category(*u.Category)
		patch.Category = &c
	}
	return patch
}

type ProductService struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
	users    repository.UserRepository
	carts    *CartService
	uploader media.Uploader
	log      *slog.Logger
	now      func() time.Time
}

func NewProductService(products repository.ProductRepository, reviews repository.ReviewRepository, users repository.UserRepository, carts *CartService, uploader media.Uploader, log *slog.Logger) *ProductService {
	return &ProductService{
		products: products,
		reviews:  reviews,
		users:    users,
		carts:    carts,
		uploader: uploader,
		log:      log,
		now:      time.Now,
	}
}

func (s *ProductService) Create(ctx context.Context, identity domain.Identity, in ProductInput) (*domain.Product, error) {
	imageNames := make([]string, len(in.Images))
	for i, f := range in.Images {
		imageNames[i] = f.Name
	}
	if err := validate.All(
		validate.Required("name", in.Name),
		validate.Required("description", in.Description),
		validate.Required("brand", in.Brand),
		validate.OneOf("category", in.Category, domain.Categories),
		validate.MinFloat("price", in.Price, 0),
		validate.MinInt("stock", in.Stock, 0),
		validate.NonEmptyList("image", imageNames),
	); err != nil {
		return nil, err
	}

	urls, err := s.uploadAll(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:        normalizeName(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Category:    domain.Category(in.Category),
		Brand:       strings.TrimSpace(in.Brand),
		Stock:       in.Stock,
		Images:      urls,
		Owner:       identity.UserID,
	}
	if err := s.products.Create(ctx, product); err != nil {
		s.discard(urls)
		return nil, apperr.Internal("failed to create product", err)
	}
	return product, nil
}

func (s *ProductService) Get(ctx context.Context, id primitive.ObjectID) (*domain.ProductDetail, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	owners, err := s.users.GetSummaries(ctx, []primitive.ObjectID{product.Owner})
	if err != nil {
		return nil, apperr.Internal("failed to load product owner", err)
	}
	detail := &domain.ProductDetail{Product: product}
	if owner, ok := owners[product.Owner]; ok {
		detail.OwnerInfo = &owner
	}
	return detail, nil
}

func (s *ProductService) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[*domain.Product], error) {
	checks := []validate.Result{}
	if filter.Page > repository.MaxPage {
		checks = append(checks, validate.RangeInt("page", filter.Page, 1, repository.MaxPage))
	}
	if filter.Category != "" {
		checks = append(checks, validate.OneOf("category", filter.Category, domain.Categories))
	}
	if filter.Sort != "" {
		checks = append(checks, validate.OneOf("sort", filter.Sort, productSortKeys))
	}
	if filter.MinPrice != nil {
		checks = append(checks, validate.MinFloat("minPrice", *filter.MinPrice, 0))
	}
	if filter.MaxPrice != nil {
		checks = append(checks, validate.MinFloat("maxPrice", *filter.MaxPrice, 0))
		if filter.MinPrice != nil {
			checks = append(checks, validate.MinFloat("maxPrice", *filter.MaxPrice, *filter.MinPrice))
		}
	}
	if err := validate.All(checks...); err != nil {
		return domain.Page[*domain.Product]{}, err
	}

	filter.Page, filter.Limit = repository.NormalizePage(filter.Page, filter.Limit)
	items, total, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.Page[*domain.Product]{}, apperr.Internal("failed to list products", err)
	}
	return domain.NewPage(items, total, filter.Page, filter.Limit), nil
}

// Update applies a partial edit to a product owned by the caller. The write
// is conditional on the version that was read, so a concurrent edit yields
// Conflict instead of being overwritten. New images are uploaded before the
// write and the replaced ones are deleted after it succeeds.
func (s *ProductService) Update(ctx context.Context, identity domain.Identity, id primitive.ObjectID, in ProductUpdate) (*domain.Product, error) {
	patch := in.patch()
	if patch.Empty() && len(in.Images) == 0 {
		return nil, apperr.InvalidInput("nothing to update")
	}
	if err := validateProductPatch(&patch); err != nil {
		return nil, err
	}

	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Owner != identity.UserID {
		return nil, apperr.Forbidden("you are not the owner of this product")
	}

	if len(in.Images) > 0 {
		urls, err := s.uploadAll(ctx, in.Images)
		if err != nil {
			return nil, err
		}
		patch.Images = urls
	}

	updated, err := s.products.Update(ctx, id, product.Version, patch, s.now())
	if err != nil {
		s.discard(patch.Images)
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			return nil, apperr.NotFound("product not found")
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, apperr.Conflict("product was modified concurrently, please retry")
		}
		return nil, apperr.Internal("failed to update product", err)
	}
	if patch.Images != nil {
		s.discard(product.Images)
	}

	if patch.Name != nil || patch.Price != nil || patch.Images != nil {
		s.carts.InvalidateProduct(ctx, id)
	}
	return updated, nil
}

// Delete removes a product owned by the caller together with its reviews and
// its line items in every cart.
func (s *ProductService) Delete(ctx context.Context, identity domain.Identity, id primitive.ObjectID) error {
	product, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if product.Owner != identity.UserID {
		return apperr.Forbidden("you are not the owner of this product")
	}

	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return apperr.NotFound("product not found")
		}
		return apperr.Internal("failed to delete product", err)
	}

	n, err := s.reviews.DeleteByProduct(ctx, id)
	if err != nil {
		return apperr.Internal("failed to delete product reviews", err)
	}
	if err := s.carts.PurgeProduct(ctx, id); err != nil {
		return err
	}
	s.discard(product.Images)

	s.log.InfoContext(ctx, "product deleted", "product_id", id.Hex(), "reviews_deleted", n)
	return nil
}

func (s *ProductService) load(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal("failed to load product", err)
	}
	return product, nil
}

func (s *ProductService) uploadAll(ctx context.Context, files []media.File) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		asset, err := s.uploader.Upload(ctx, f)
		if err != nil {
			s.discard(urls)
			return nil, apperr.Internal("failed to upload image", err)
		}
		urls = append(urls, asset.URL)
	}
	return urls, nil
}

// discard deletes uploaded media; failures are only logged.
func (s *ProductService) discard(urls []string) {
	for _, u := range urls {
		if err := s.uploader.Delete(context.Background(), media.PublicID(u)); err != nil {
			s.log.Warn("failed to delete media", "url", u, "error", err)
		}
	}
}

func validateProductPatch(patch *domain.ProductPatch) error {
	var checks []validate.Result
	if patch.Name != nil {
		checks = append(checks, validate.Required("name", *patch.Name))
		name := normalizeName(*patch.Name)
		patch.Name = &name
	}
	if patch.Description != nil {
		checks = append(checks, validate.Required("description", *patch.Description))
	}
	if patch.Brand != nil {
		checks = append(checks, validate.Required("brand", *patch.Brand))
	}
	if patch.Category != nil {
		checks = append(checks, validate.OneOf("category", string(*patch.Category), domain.Categories))
	}
	if patch.Price != nil {
		checks = append(checks, validate.MinFloat("price", *patch.Price, 0))
	}
	if patch.Stock != nil {
		checks = append(checks, validate.MinInt("stock", *patch.Stock, 0))
	}
	return validate.All(checks...)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
