package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/validate"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductService interface {
	Create(ctx context.Context, identity domain.Identity, in service.ProductInput) (*domain.Product, error)
	Get(ctx context.Context, id primitive.ObjectID) (*domain.ProductDetail, error)
	List(ctx context.Context, filter domain.ProductFilter) (domain.Page[*domain.Product], error)
	Update(ctx context.Context, identity domain.Identity, id primitive.ObjectID, in service.ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, identity domain.Identity, id primitive.ObjectID) error
}

type ProductHandler struct {
	products ProductService
	log      *slog.Logger
}

func NewProductHandler(products ProductService, log *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, log: log}
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if r.FormValue("price") == "" {
		respondError(w, r, h.log, apperr.InvalidInput("price is required"))
		return
	}
	price, err := parseFloat("price", r.FormValue("price"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	stock, err := optionalInt("stock", r.FormValue("stock"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	images, closeImages, err := formFiles(r, "images")
	defer closeImages()
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	product, err := h.products.Create(r.Context(), identityFrom(r.Context()), service.ProductInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Price:       price,
		Category:    r.FormValue("category"),
		Brand:       r.FormValue("brand"),
		Stock:       stock,
		Images:      images,
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, product, "product created")
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ParseObjectID("product id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	product, err := h.products.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, product, "product fetched")
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Category: q.Get("category"),
		Brand:    q.Get("brand"),
		Sort:     q.Get("sort"),
	}

	var err error
	if filter.MinPrice, err = optionalFloat("minPrice", q.Get("minPrice")); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if filter.MaxPrice, err = optionalFloat("maxPrice", q.Get("maxPrice")); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if filter.Page, err = optionalInt("page", q.Get("page")); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if filter.Limit, err = optionalInt("limit", q.Get("limit")); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	page, err := h.products.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, page, "products fetched")
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ParseObjectID("product id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := parseMultipart(r); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	in := service.ProductUpdate{
		Name:        formString(r, "name"),
		Description: formString(r, "description"),
		Category:    formString(r, "category"),
		Brand:       formString(r, "brand"),
	}
	if v := formString(r, "price"); v != nil {
		price, err := parseFloat("price", *v)
		if err != nil {
			respondError(w, r, h.log, err)
			return
		}
		in.Price = &price
	}
	if v := formString(r, "stock"); v != nil {
		stock, err := parseInt("stock", *v)
		if err != nil {
			respondError(w, r, h.log, err)
			return
		}
		in.Stock = &stock
	}
	images, closeImages, err := formFiles(r, "images")
	defer closeImages()
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	in.Images = images

	product, err := h.products.Update(r.Context(), identityFrom(r.Context()), id, in)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, product, "product updated")
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ParseObjectID("product id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	if err := h.products.Delete(r.Context(), identityFrom(r.Context()), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{}, "product deleted")
}
