// Package auth issues and verifies the JWT access/refresh pair and hashes
// passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims is the payload of both token kinds.
type Claims struct {
	UserID   string `json:"_id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		accessTTL:     cfg.AccessTokenExpiry,
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		refreshTTL:    cfg.RefreshTokenExpiry,
		now:           time.Now,
	}
}

func (t *TokenIssuer) IssueTokenPair(identity domain.Identity) (TokenPair, error) {
	if identity.IsZero() {
		return TokenPair{}, errors.New("cannot issue tokens for an empty identity")
	}

	access, err := t.sign(identity, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	// the refresh token carries only the user id
	refresh, err := t.sign(domain.Identity{UserID: identity.UserID}, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) VerifyAccessToken(token string) (domain.Identity, error) {
	return t.verify(token, t.accessSecret, "access token")
}

func (t *TokenIssuer) VerifyRefreshToken(token string) (domain.Identity, error) {
	return t.verify(token, t.refreshSecret, "refresh token")
}

func (t *TokenIssuer) sign(identity domain.Identity, secret []byte, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID:   identity.UserID.Hex(),
		Email:    identity.Email,
		FullName: identity.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenIssuer) verify(token string, secret []byte, kind string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, apperr.Auth("unauthorized request")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, apperr.Wrap(apperr.KindAuth, kind+" expired", err)
		}
		return domain.Identity{}, apperr.Wrap(apperr.KindAuth, "invalid "+kind, err)
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return domain.Identity{}, apperr.Wrap(apperr.KindAuth, "invalid "+kind, err)
	}
	return domain.Identity{UserID: userID, Email: claims.Email, FullName: claims.FullName}, nil
}
