package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/validate"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewService interface {
	Create(ctx context.Context, identity domain.Identity, productID primitive.ObjectID, rating int, comment string) (*domain.Review, error)
	List(ctx context.Context, productID primitive.ObjectID) ([]*domain.ReviewDetail, error)
	Update(ctx context.Context, identity domain.Identity, id primitive.ObjectID, patch domain.ReviewPatch) (*domain.Review, error)
	Delete(ctx context.Context, identity domain.Identity, id primitive.ObjectID) error
}

type ReviewHandler struct {
	reviews ReviewService
	log     *slog.Logger
}

func NewReviewHandler(reviews ReviewService, log *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, log: log}
}

type ReviewRequestDTO struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	productID, err := validate.ParseObjectID("product id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req ReviewRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var rating int
	if req.Rating != nil {
		rating = *req.Rating
	}
	var comment string
	if req.Comment != nil {
		comment = *req.Comment
	}

	review, err := h.reviews.Create(r.Context(), identityFrom(r.Context()), productID, rating, comment)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, review, "review added")
}

func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	productID, err := validate.ParseObjectID("product id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	reviews, err := h.reviews.List(r.Context(), productID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews, "reviews fetched")
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ParseObjectID("review id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req ReviewRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	review, err := h.reviews.Update(r.Context(), identityFrom(r.Context()), id, domain.ReviewPatch{Rating: req.Rating, Comment: req.Comment})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, review, "review updated")
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ParseObjectID("review id", chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	if err := h.reviews.Delete(r.Context(), identityFrom(r.Context()), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{}, "review deleted")
}
