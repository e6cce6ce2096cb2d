// Package identity asks the identity service whether a renter's documents are verified.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-rental/internal/logger"
)

type Tokens interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  Tokens
	Logger  *logger.Logger
}

func NewClient(baseURL string, httpClient *http.Client, tokens Tokens, log *logger.Logger) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient, Tokens: tokens, Logger: log}
}

type verificationResponse struct {
	RenterID string `json:"renter_id"`
	Verified bool   `json:"verified"`
}

// HasVerifiedDocuments is false for renters the identity service does not know.
func (c *Client) HasVerifiedDocuments(ctx context.Context, renterID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/internal/renters/%s/verification", c.BaseURL, url.PathEscape(renterID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	if c.Tokens != nil {
		token, err := c.Tokens.Token(ctx)
		if err != nil {
			return false, fmt.Errorf("identity service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("identity service request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		c.Logger.Info("IDENTITY", fmt.Sprintf("renter %s unknown to identity service", renterID))
		return false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("identity service returned %s: %s", resp.Status, body)
	}

	var out verificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode identity response: %w", err)
	}
	return out.Verified, nil
}
