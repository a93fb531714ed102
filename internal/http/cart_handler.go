package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/validate"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartService interface {
	Add(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error)
	Get(ctx context.Context, identity domain.Identity) (*domain.CartView, error)
	UpdateItem(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, quantity int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, identity domain.Identity, productID primitive.ObjectID) (*domain.CartView, error)
	Clear(ctx context.Context, identity domain.Identity) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type CartItemRequestDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, quantity, err := h.parseItem(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	cart, err := h.carts.Add(ctx, identityFrom(r.Context()), productID, quantity)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart, "item added to cart")
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Get(ctx, identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart, "cart fetched")
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, quantity, err := h.parseItem(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	cart, err := h.carts.UpdateItem(ctx, identityFrom(r.Context()), productID, quantity)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart, "cart item updated")
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := validate.ParseObjectID("productId", chi.URLParam(r, "productId"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	cart, err := h.carts.RemoveItem(ctx, identityFrom(r.Context()), productID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart, "item removed from cart")
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.Clear(ctx, identityFrom(r.Context())); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{}, "cart cleared")
}

func (h *CartHandler) parseItem(r *http.Request) (primitive.ObjectID, int, error) {
	var req CartItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		return primitive.NilObjectID, 0, err
	}
	if err := validate.All(
		validate.Required("productId", req.ProductID),
		validate.RangeInt("quantity", req.Quantity, 1, domain.MaxItemQuantity),
	); err != nil {
		return primitive.NilObjectID, 0, err
	}
	productID, err := validate.ParseObjectID("productId", req.ProductID)
	return productID, req.Quantity, err
}
