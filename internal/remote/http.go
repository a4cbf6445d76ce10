package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

const (
	refreshPath = "/auth/refresh"
	sessionPath = "/auth/session"

	// maxBodySize bounds response bodies read from the identity service.
	maxBodySize = 1 << 20
)

// HTTPConfig configures an HTTPService.
type HTTPConfig struct {
	// BaseURL of the identity service; "http://" is assumed without scheme.
	BaseURL string

	Timeout time.Duration

	// RateLimit is the maximum requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int

	UserAgent string
}

// DefaultHTTPConfig returns defaults for baseURL.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		RateLimit: 2,
		Burst:     4,
		UserAgent: "tokmesh-session/1.0",
	}
}

// HTTPService calls a JSON identity service.
type HTTPService struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// HTTPOption configures an HTTPService.
type HTTPOption func(*HTTPService)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPService) {
		s.client = c
	}
}

// NewHTTPService creates a service client.
func NewHTTPService(cfg HTTPConfig, opts ...HTTPOption) *HTTPService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tokmesh-session/1.0"
	}

	s := &HTTPService{
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Inf, 0),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the normalized base URL.
func (s *HTTPService) BaseURL() string {
	return s.baseURL
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Session *domain.SessionPayload `json:"session"`
}

// Refresh exchanges refreshToken for a new session. A response with a
// null session yields (nil, nil).
func (s *HTTPService) Refresh(ctx context.Context, refreshToken string) (*domain.SessionPayload, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out sessionResponse
	if err := s.do(req, &out); err != nil {
		return nil, classify(domain.ErrRefreshTransient, err)
	}
	return out.Session, nil
}

// Validate checks accessToken. A null session means the token is no
// longer valid.
func (s *HTTPService) Validate(ctx context.Context, accessToken string) (*domain.SessionPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+sessionPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out sessionResponse
	if err := s.do(req, &out); err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return out.Session, nil
}

// do sends req after waiting for the limiter and decodes a 2xx body
// into target.
func (s *HTTPService) do(req *http.Request, target any) error {
	if err := s.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	logger.L(req.Context()).Debug("identity service call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
	)

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(body).Decode(&errResp); err == nil {
			se.Code = errResp.Code
			se.Message = errResp.Message
		}
		return se
	}

	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
