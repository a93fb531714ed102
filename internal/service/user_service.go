package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/validate"
)

// TokenIssuer issues and verifies the access/refresh pair.
type TokenIssuer interface {
	IssueTokenPair(identity domain.Identity) (auth.TokenPair, error)
	VerifyRefreshToken(token string) (domain.Identity, error)
}

type RegisterInput struct {
	FullName   string
	Email      string
	Password   string
	Role       string
	Avatar     *media.File
	CoverImage *media.File
}

type UserService struct {
	users    repository.UserRepository
	tokens   TokenIssuer
	uploader media.Uploader
	log      *slog.Logger
}

func NewUserService(users repository.UserRepository, tokens TokenIssuer, uploader media.Uploader, log *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		tokens:   tokens,
		uploader: uploader,
		log:      log,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Role == "" {
		in.Role = string(domain.RoleBuyer)
	}
	email := normalizeEmail(in.Email)
	if err := validate.All(
		validate.Required("fullName", in.FullName),
		validate.Required("email", in.Email),
		validate.Required("password", in.Password),
		validate.Email("email", email),
		validate.OneOf("role", in.Role, domain.Roles),
	); err != nil {
		return nil, err
	}
	if in.Avatar == nil {
		return nil, apperr.InvalidInput("avatar file is required")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("user with this email already exists")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.Internal("failed to check email", err)
	}

	avatar, err := s.uploader.Upload(ctx, *in.Avatar)
	if err != nil {
		return nil, apperr.Internal("failed to upload avatar", err)
	}
	uploaded := []string{avatar.URL}

	var cover media.Asset
	if in.CoverImage != nil {
		cover, err = s.uploader.Upload(ctx, *in.CoverImage)
		if err != nil {
			s.discard(uploaded...)
			return nil, apperr.Internal("failed to upload cover image", err)
		}
		uploaded = append(uploaded, cover.URL)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.discard(uploaded...)
		return nil, apperr.Internal("failed to register user", err)
	}

	user := &domain.User{
		FullName:   normalizeName(in.FullName),
		Email:      email,
		Password:   hash,
		Avatar:     avatar.URL,
		CoverImage: cover.URL,
		Role:       domain.Role(in.Role),
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.discard(uploaded...)
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.Conflict("user with this email already exists")
		}
		return nil, apperr.Internal("failed to register user", err)
	}
	return user, nil
}

// Login checks credentials and stores the refresh token of the new pair.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, auth.TokenPair, error) {
	if err := validate.All(
		validate.Required("email", email),
		validate.Required("password", password),
	); err != nil {
		return nil, auth.TokenPair{}, err
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.TokenPair{}, apperr.NotFound("user does not exist")
		}
		return nil, auth.TokenPair{}, apperr.Internal("failed to load user", err)
	}

	ok, err := auth.CheckPassword(user.Password, password)
	if err != nil {
		return nil, auth.TokenPair{}, apperr.Internal("failed to check password", err)
	}
	if !ok {
		return nil, auth.TokenPair{}, apperr.Auth("invalid user credentials")
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	return user, pair, nil
}

func (s *UserService) Logout(ctx context.Context, identity domain.Identity) error {
	if err := s.users.SetRefreshToken(ctx, identity.UserID, ""); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("failed to log out", err)
	}
	return nil
}

// RefreshToken trades a valid refresh token for a new pair. The presented
// token must be the one stored for the user, so each refresh token works once.
func (s *UserService) RefreshToken(ctx context.Context, token string) (auth.TokenPair, error) {
	identity, err := s.tokens.VerifyRefreshToken(token)
	if err != nil {
		return auth.TokenPair{}, err
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return auth.TokenPair{}, apperr.Auth("invalid refresh token")
		}
		return auth.TokenPair{}, apperr.Internal("failed to load user", err)
	}
	if user.RefreshToken == "" || user.RefreshToken != token {
		return auth.TokenPair{}, apperr.Auth("refresh token is expired or used")
	}

	return s.issue(ctx, user)
}

func (s *UserService) ChangePassword(ctx context.Context, identity domain.Identity, oldPassword, newPassword string) error {
	if err := validate.All(
		validate.Required("oldPassword", oldPassword),
		validate.Required("newPassword", newPassword),
	); err != nil {
		return err
	}

	user, err := s.CurrentUser(ctx, identity)
	if err != nil {
		return err
	}
	ok, err := auth.CheckPassword(user.Password, oldPassword)
	if err != nil {
		return apperr.Internal("failed to check password", err)
	}
	if !ok {
		return apperr.InvalidInput("invalid old password")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal("failed to change password", err)
	}
	if _, err := s.users.Update(ctx, user.ID, repository.UserFields{Password: &hash}); err != nil {
		return apperr.Internal("failed to change password", err)
	}
	return nil
}

func (s *UserService) CurrentUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return user, nil
}

func (s *UserService) UpdateAccount(ctx context.Context, identity domain.Identity, fullName, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := validate.All(
		validate.Required("fullName", fullName),
		validate.Required("email", email),
		validate.Email("email", email),
	); err != nil {
		return nil, err
	}

	name := normalizeName(fullName)
	return s.update(ctx, identity, repository.UserFields{FullName: &name, Email: &email})
}

// UpdateAvatar replaces the avatar. Removing the previous file is best effort.
func (s *UserService) UpdateAvatar(ctx context.Context, identity domain.Identity, file *media.File) (*domain.User, error) {
	return s.replaceMedia(ctx, identity, file, "avatar", func(u *domain.User) string { return u.Avatar },
		func(url string) repository.UserFields { return repository.UserFields{Avatar: &url} })
}

func (s *UserService) UpdateCoverImage(ctx context.Context, identity domain.Identity, file *media.File) (*domain.User, error) {
	return s.replaceMedia(ctx, identity, file, "cover image", func(u *domain.User) string { return u.CoverImage },
		func(url string) repository.UserFields { return repository.UserFields{CoverImage: &url} })
}

func (s *UserService) replaceMedia(ctx context.Context, identity domain.Identity, file *media.File, what string,
	current func(*domain.User) string, fields func(url string) repository.UserFields) (*domain.User, error) {
	if file == nil {
		return nil, apperr.InvalidInput(what + " file is missing")
	}

	user, err := s.CurrentUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	old := current(user)

	asset, err := s.uploader.Upload(ctx, *file)
	if err != nil {
		return nil, apperr.Internal("failed to upload "+what, err)
	}

	updated, err := s.update(ctx, identity, fields(asset.URL))
	if err != nil {
		s.log.ErrorContext(ctx, "uploaded media not saved", "user_id", identity.UserID.Hex(), "url", asset.URL, "error", err)
		s.discard(asset.URL)
		return nil, err
	}
	s.discard(old)
	return updated, nil
}

func (s *UserService) update(ctx context.Context, identity domain.Identity, fields repository.UserFields) (*domain.User, error) {
	user, err := s.users.Update(ctx, identity.UserID, fields)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, apperr.NotFound("user not found")
		case errors.Is(err, repository.ErrDuplicateKey):
			return nil, apperr.Conflict("user with this email already exists")
		}
		return nil, apperr.Internal("failed to update user", err)
	}
	return user, nil
}

func (s *UserService) issue(ctx context.Context, user *domain.User) (auth.TokenPair, error) {
	pair, err := s.tokens.IssueTokenPair(user.Identity())
	if err != nil {
		return auth.TokenPair{}, apperr.Internal("failed to generate tokens", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return auth.TokenPair{}, apperr.Internal("failed to store refresh token", err)
	}
	user.RefreshToken = pair.RefreshToken
	return pair, nil
}

// discard deletes uploaded media; failures are only logged.
func (s *UserService) discard(urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.uploader.Delete(context.Background(), media.PublicID(u)); err != nil {
			s.log.Warn("failed to delete media", "url", u, "error", err)
		}
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
