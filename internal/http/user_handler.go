package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/service"
)

type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, auth.TokenPair, error)
	Logout(ctx context.Context, identity domain.Identity) error
	RefreshToken(ctx context.Context, token string) (auth.TokenPair, error)
	ChangePassword(ctx context.Context, identity domain.Identity, oldPassword, newPassword string) error
	CurrentUser(ctx context.Context, identity domain.Identity) (*domain.User, error)
	UpdateAccount(ctx context.Context, identity domain.Identity, fullName, email string) (*domain.User, error)
	UpdateAvatar(ctx context.Context, identity domain.Identity, file *media.File) (*domain.User, error)
	UpdateCoverImage(ctx context.Context, identity domain.Identity, file *media.File) (*domain.User, error)
}

// CookieConfig controls the token cookies set on login and refresh.
type CookieConfig struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

type UserHandler struct {
	users   UserService
	cookies CookieConfig
	log     *slog.Logger
}

func NewUserHandler(users UserService, cookies CookieConfig, log *slog.Logger) *UserHandler {
	return &UserHandler{users: users, cookies: cookies, log: log}
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type RefreshRequestDTO struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequestDTO struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type UpdateAccountRequestDTO struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	avatar, closeAvatar, err := formFile(r, "avatar")
	defer closeAvatar()
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	cover, closeCover, err := formFile(r, "coverImage")
	defer closeCover()
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		FullName:   r.FormValue("fullName"),
		Email:      r.FormValue("email"),
		Password:   r.FormValue("password"),
		Role:       r.FormValue("role"),
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, user, "user registered successfully")
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	user, pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	h.setTokenCookies(w, pair)
	respondJSON(w, http.StatusOK, LoginResponseDTO{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "user logged in successfully")
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), identityFrom(r.Context())); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	h.clearTokenCookies(w)
	respondJSON(w, http.StatusOK, struct{}{}, "user logged out")
}

func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req RefreshRequestDTO
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, h.log, err)
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.users.RefreshToken(r.Context(), token)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	h.setTokenCookies(w, pair)
	respondJSON(w, http.StatusOK, pair, "access token refreshed")
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), identityFrom(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{}, "password changed successfully")
}

func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.CurrentUser(r.Context(), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, user, "current user fetched")
}

func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	user, err := h.users.UpdateAccount(r.Context(), identityFrom(r.Context()), req.FullName, req.Email)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, user, "account details updated")
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, "avatar", h.users.UpdateAvatar, "avatar updated")
}

func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, "coverImage", h.users.UpdateCoverImage, "cover image updated")
}

func (h *UserHandler) replaceMedia(w http.ResponseWriter, r *http.Request, field string,
	update func(context.Context, domain.Identity, *media.File) (*domain.User, error), message string) {
	if err := parseMultipart(r); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	file, closeFile, err := formFile(r, field)
	defer closeFile()
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	user, err := update(r.Context(), identityFrom(r.Context()), file)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, user, message)
}

func (h *UserHandler) setTokenCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, h.cookie(accessTokenCookie, pair.AccessToken, h.cookies.AccessMaxAge))
	http.SetCookie(w, h.cookie(refreshTokenCookie, pair.RefreshToken, h.cookies.RefreshMaxAge))
}

func (h *UserHandler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		c := h.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *UserHandler) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
