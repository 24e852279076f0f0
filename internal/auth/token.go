package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finbook/internal/domain"
)

// TokenType is the OAuth2 token type tag returned alongside access tokens.
const TokenType = "bearer"

// ErrInvalidToken is the single error returned for every validation failure
// so callers cannot distinguish bad signatures from expired tokens.
var ErrInvalidToken = errors.New("could not validate credentials")

// UserClaims is the public profile embedded in each token. The password hash
// is never part of it.
type UserClaims struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	User UserClaims `json:"user"`
}

// Validator resolves a bearer token into the acting user.
type Validator interface {
	Validate(ctx context.Context, token string) (*domain.User, error)
}

// TokenService issues HS256-signed tokens embedding the user profile and
// validates them without touching storage.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token valid from now until now+ttl.
func (s *TokenService) Issue(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		User: UserClaims{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and validity window and returns the profile
// embedded in the token. The token is the sole identity source here; stale
// profile data lives until the token is reissued.
func (s *TokenService) Validate(_ context.Context, tokenString string) (*domain.User, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.User.ID == 0 || claims.User.Username == "" {
		return nil, ErrInvalidToken
	}

	return &domain.User{
		ID:       claims.User.ID,
		Email:    claims.User.Email,
		Username: claims.User.Username,
	}, nil
}

// UserGetter is the storage lookup needed by StoreValidator.
type UserGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// StoreValidator re-fetches the user record on every request instead of
// trusting the embedded claims, trading a lookup for fresh profile data.
type StoreValidator struct {
	tokens *TokenService
	users  UserGetter
}

func NewStoreValidator(tokens *TokenService, users UserGetter) *StoreValidator {
	return &StoreValidator{tokens: tokens, users: users}
}

func (v *StoreValidator) Validate(ctx context.Context, tokenString string) (*domain.User, error) {
	claimed, err := v.tokens.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	user, err := v.users.GetByID(ctx, claimed.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}
