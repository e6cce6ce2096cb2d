package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-rental/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// Claims is the payload of tokens signed by this service.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// HS256Verifier validates tokens signed with a shared secret.
type HS256Verifier struct {
	Secret []byte
	Issuer string
}

func NewHS256Verifier(secret, issuer string) *HS256Verifier {
	return &HS256Verifier{Secret: []byte(secret), Issuer: issuer}
}

func (v *HS256Verifier) Verify(_ context.Context, raw string) (models.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	return actorFromClaims(claims.Subject, string(claims.Role))
}

// IssueToken signs an HS256 token for actor. Used by local tooling and tests.
func IssueToken(secret, issuer string, actor models.Actor, ttl time.Duration) (*models.TokenResponse, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{AccessToken: signed, ExpiresIn: int(ttl.Seconds()), TokenType: "Bearer"}, nil
}

func actorFromClaims(subject, role string) (models.Actor, error) {
	if subject == "" {
		return models.Actor{}, errors.New("subject claim not found in token")
	}
	actor := models.Actor{ID: subject, Role: models.Role(strings.ToUpper(role))}
	if !actor.Role.Valid() {
		return models.Actor{}, fmt.Errorf("token carries no usable role (%q)", role)
	}
	return actor, nil
}
