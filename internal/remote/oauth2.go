package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// DefaultTokenLifetime is assumed when the provider omits expires_in.
const DefaultTokenLifetime = time.Hour

// OAuth2Config configures an OAuth2Service.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// OAuth2Service refreshes through an OAuth2 token endpoint and validates
// access tokens against a userinfo endpoint.
type OAuth2Service struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	now         func() time.Time
}

// NewOAuth2Service creates a service. httpClient may be nil.
func NewOAuth2Service(cfg OAuth2Config, httpClient *http.Client) *OAuth2Service {
	return &OAuth2Service{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

func (s *OAuth2Service) context(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Refresh redeems refreshToken at the token endpoint. The provider may
// rotate the refresh token; when it does not, the returned payload
// carries none and the caller keeps the old one.
func (s *OAuth2Service) Refresh(ctx context.Context, refreshToken string) (*domain.SessionPayload, error) {
	src := s.config.TokenSource(s.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuth2(err)
	}

	p := &domain.SessionPayload{
		AccessToken: tok.AccessToken,
	}
	if tok.RefreshToken != refreshToken {
		p.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		p.ExpiresAt = s.now().Add(DefaultTokenLifetime).UnixMilli()
	} else {
		p.ExpiresAt = tok.Expiry.UnixMilli()
	}
	return p, nil
}

// classifyOAuth2 marks grant errors permanent. invalid_grant means the
// refresh token was revoked or has expired.
func classifyOAuth2(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return domain.MarkPermanent(domain.ErrRefreshTransient.WithCause(err))
		}
		if re.Response != nil {
			se := &StatusError{StatusCode: re.Response.StatusCode, Code: re.ErrorCode, Message: re.ErrorDescription}
			return classify(domain.ErrRefreshTransient, se)
		}
	}
	return domain.ErrRefreshTransient.WithCause(err)
}

type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate fetches userinfo with accessToken. Any non-2xx answer means
// the token is not valid.
func (s *OAuth2Service) Validate(ctx context.Context, accessToken string) (*domain.SessionPayload, error) {
	if s.userInfoURL == "" {
		return nil, domain.ErrMissingArgument.WithDetails("userinfo endpoint not configured")
	}

	client := s.config.Client(s.context(ctx), &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var info userInfo
	if err := json.NewDecoder(body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, domain.ErrSessionNotFound.WithDetails("userinfo without subject")
	}

	return &domain.SessionPayload{
		AccessToken: accessToken,
		User: &domain.User{
			ID:    info.Sub,
			Email: info.Email,
			Name:  info.Name,
		},
	}, nil
}
