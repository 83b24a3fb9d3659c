package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-support-api/config"
)

// Auth0UserInfo is the profile returned by Auth0's /userinfo endpoint
type Auth0UserInfo struct {
	Sub   string `json:"sub"` // Auth0 user ID
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ProfileProvider resolves the identity behind an access token
type ProfileProvider interface {
	GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error)
}

// Auth0Service handles interactions with Auth0 API
type Auth0Service struct {
	domain     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAuth0Service creates a new Auth0 service instance
func NewAuth0Service(cfg *config.Config, logger *slog.Logger) *Auth0Service {
	return &Auth0Service{
		domain: cfg.Auth0Domain,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Auth0Service) userInfoURL() string {
	// a domain with a scheme is used as-is so tests can point at httptest
	if strings.HasPrefix(s.domain, "http://") || strings.HasPrefix(s.domain, "https://") {
		return strings.TrimSuffix(s.domain, "/") + "/userinfo"
	}
	return fmt.Sprintf("https://%s/userinfo", s.domain)
}

// GetUserInfo fetches the caller's name and email with their access token
func (s *Auth0Service) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("failed to close userinfo body", slog.Any("err", closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo Auth0UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &userInfo, nil
}
