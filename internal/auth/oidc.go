package auth

import (
	"context"
	"fmt"
	"strings"

	"ms-rental/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates Keycloak access tokens. The role is the first realm role that
// names one of RENTER, STAFF or ADMIN.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

type keycloakClaims struct {
	Sub         string `json:"sub"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (models.Actor, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	var claims keycloakClaims
	if err := token.Claims(&claims); err != nil {
		return models.Actor{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return actorFromClaims(claims.Sub, realmRole(claims.RealmAccess.Roles))
}

func realmRole(roles []string) string {
	for _, role := range roles {
		if models.Role(strings.ToUpper(role)).Valid() {
			return role
		}
	}
	return ""
}
