package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"
)

// TokenSource obtains client-credentials tokens from Keycloak and caches them.
type TokenSource struct {
	KeycloakURL  string
	Realm        string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
	Cache        *RedisTokenCache
	Logger       *logger.Logger
}

func (s *TokenSource) tokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(s.KeycloakURL, "/"), s.Realm)
}

// Token returns a cached token when one is still valid, otherwise fetches a new one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.Cache != nil {
		cached, err := s.Cache.GetToken(ctx)
		if err != nil {
			s.Logger.Warn("IDENTITY", fmt.Sprintf("token cache unavailable: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	tokenResp, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if s.Cache != nil {
		if err := s.Cache.SetToken(ctx, tokenResp.AccessToken, time.Duration(tokenResp.ExpiresIn)*time.Second); err != nil {
			s.Logger.Warn("IDENTITY", fmt.Sprintf("failed to cache token: %v", err))
		}
	}
	return tokenResp.AccessToken, nil
}

func (s *TokenSource) fetch(ctx context.Context) (*models.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.ClientID)
	data.Set("client_secret", s.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	s.Logger.Debug("IDENTITY", fmt.Sprintf("requesting M2M token for client %s", s.ClientID))
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to get token, status: %s: %s", resp.Status, body)
	}

	var tokenResp models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response carried no access token")
	}
	return &tokenResp, nil
}
