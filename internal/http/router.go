package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Deps is everything the router needs.
type Deps struct {
	Carts    CartService
	Products ProductService
	Reviews  ReviewService
	Users    UserService
	Tokens   TokenVerifier
	Log      *slog.Logger

	Cookies            CookieConfig
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// UploadDir, when set, is served under /uploads/.
	UploadDir string
	// HealthCheck reports whether backing stores are reachable.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	cartHandler := NewCartHandler(d.Carts, d.RequestTimeout, d.Log)
	productHandler := NewProductHandler(d.Products, d.Log)
	reviewHandler := NewReviewHandler(d.Reviews, d.Log)
	userHandler := NewUserHandler(d.Users, d.Cookies, d.Log)
	authenticate := Authenticate(d.Tokens, d.Users, d.Log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(LimitBody(d.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.HealthCheck != nil {
			if err := d.HealthCheck(r.Context()); err != nil {
				d.Log.WarnContext(r.Context(), "health check failed", "error", err)
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, "unhealthy")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "healthy")
	})

	if d.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir))))
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
		r.Post("/refresh-token", userHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", userHandler.Logout)
			r.Post("/change-password", userHandler.ChangePassword)
			r.Get("/current-user", userHandler.CurrentUser)
			r.Patch("/update-account", userHandler.UpdateAccount)
			r.Patch("/avatar", userHandler.UpdateAvatar)
			r.Patch("/cover-image", userHandler.UpdateCoverImage)
		})
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", cartHandler.AddItem)
		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Patch("/item", cartHandler.UpdateQuantity)
		r.Delete("/item/{productId}", cartHandler.RemoveItem)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", productHandler.List)
		r.Get("/{id}", productHandler.Get)
		r.Get("/{id}/reviews", reviewHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/", productHandler.Create)
			r.Patch("/{id}", productHandler.Update)
			r.Delete("/{id}", productHandler.Delete)
			r.Post("/{id}/reviews", reviewHandler.Create)
		})
	})

	r.Route("/reviews", func(r chi.Router) {
		r.Use(authenticate)
		r.Patch("/{id}", reviewHandler.Update)
		r.Delete("/{id}", reviewHandler.Delete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, nil, "route not found")
	})

	return otelhttp.NewHandler(r, "storefront")
}
