package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/metrics"
)

// ErrAuthExpired means both refresh protocols were exhausted; the user must
// re-authenticate. Callers abort the outbound call that needed the token and
// do not retry within the same call.
var ErrAuthExpired = errors.New("authentication expired, re-authentication required")

// Config for the Manager. PrimaryURL presents the current token+tenant to
// obtain a replacement with a fixed short TTL; SecondaryURL accepts a stored
// refresh token in an OAuth-style form POST.
type Config struct {
	PrimaryURL    string
	SecondaryURL  string
	ClientID      string
	RefreshBuffer time.Duration // safety margin before expiry
	PrimaryTTL    time.Duration // TTL of tokens issued by the primary protocol
	Timeout       time.Duration
}

// Manager owns one externally issued token and keeps it valid across two
// incompatible refresh protocols. Concurrent callers may trigger redundant
// refreshes; each call ends with a token at least as fresh as before, or an
// explicit error. The Store guards the persisted token against torn
// read/modify/write.
type Manager struct {
	cfg    Config
	store  Store
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(cfg Config, store Store, logger *zap.Logger) *Manager {
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = 60 * time.Second
	}
	if cfg.PrimaryTTL <= 0 {
		cfg.PrimaryTTL = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

// NeedsRefresh reports whether the stored token is inside the refresh buffer
// or has no expiry recorded at all.
func (m *Manager) NeedsRefresh(ctx context.Context) bool {
	t, err := m.store.Load(ctx)
	if err != nil {
		return true
	}
	return m.stale(t)
}

func (m *Manager) stale(t Token) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	// stale once now >= expiresAt - buffer
	return !m.now().Before(t.ExpiresAt.Add(-m.cfg.RefreshBuffer))
}

// GetValidToken returns a usable token value, transparently refreshing when
// the stored one is stale. Fails with ErrAuthExpired when no refresh path
// succeeds.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	t, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}

	if !m.stale(t) {
		return t.Value, nil
	}

	t, err = m.Refresh(ctx)
	if err != nil {
		return "", err
	}

	return t.Value, nil
}

// Store records a freshly issued token with its TTL; always persists value
// and tenant together with the computed expiry.
func (m *Manager) Store(ctx context.Context, value, tenant string, ttl time.Duration) error {
	t, err := m.store.Load(ctx)
	if err != nil {
		t = Token{}
	}

	t.Value = value
	t.Tenant = tenant
	t.ExpiresAt = m.now().Add(ttl)

	return m.store.Save(ctx, t)
}

// Refresh attempts the primary protocol and, on any failure, falls back to
// the secondary one. Both failing is terminal for this call; the next
// GetValidToken drives the next attempt.
func (m *Manager) Refresh(ctx context.Context) (Token, error) {
	current, err := m.store.Load(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}

	refreshed, perr := m.refreshPrimary(ctx, current)
	if perr == nil {
		metrics.TokenRefreshes.WithLabelValues("primary", "ok").Inc()
		if err := m.store.Save(ctx, refreshed); err != nil {
			return Token{}, fmt.Errorf("save token: %w", err)
		}
		return refreshed, nil
	}
	metrics.TokenRefreshes.WithLabelValues("primary", "error").Inc()
	m.logger.Warn("primary refresh failed, trying secondary", zap.Error(perr))

	refreshed, serr := m.refreshSecondary(ctx, current)
	if serr == nil {
		metrics.TokenRefreshes.WithLabelValues("secondary", "ok").Inc()
		if err := m.store.Save(ctx, refreshed); err != nil {
			return Token{}, fmt.Errorf("save token: %w", err)
		}
		return refreshed, nil
	}
	metrics.TokenRefreshes.WithLabelValues("secondary", "error").Inc()
	m.logger.Error("both refresh protocols failed",
		zap.NamedError("primary", perr),
		zap.NamedError("secondary", serr),
	)

	return Token{}, ErrAuthExpired
}

// refreshPrimary presents the current token and tenant as headers and
// receives a replacement value; the TTL is a fixed property of the protocol.
func (m *Manager) refreshPrimary(ctx context.Context, current Token) (Token, error) {
	if m.cfg.PrimaryURL == "" {
		return Token{}, errors.New("primary refresh not configured")
	}
	if current.Value == "" {
		return Token{}, errors.New("no current token to present")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.PrimaryURL, nil)
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Authorization", "Bearer "+current.Value)
	req.Header.Set("X-Tenant", current.Tenant)

	res, err := m.client.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return Token{}, fmt.Errorf("primary refresh status=%d", res.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return Token{}, fmt.Errorf("primary refresh decode: %w", err)
	}
	if body.Token == "" {
		return Token{}, errors.New("primary refresh returned empty token")
	}

	current.Value = body.Token
	current.ExpiresAt = m.now().Add(m.cfg.PrimaryTTL)

	return current, nil
}

// refreshSecondary presents the stored refresh token in a form POST,
// receiving a new access token and optionally a rotated refresh token.
func (m *Manager) refreshSecondary(ctx context.Context, current Token) (Token, error) {
	if m.cfg.SecondaryURL == "" {
		return Token{}, errors.New("secondary refresh not configured")
	}
	if current.RefreshToken == "" {
		return Token{}, errors.New("no refresh token stored")
	}

	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.SecondaryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := m.client.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return Token{}, fmt.Errorf("secondary refresh status=%d", res.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return Token{}, fmt.Errorf("secondary refresh decode: %w", err)
	}
	if body.AccessToken == "" {
		return Token{}, errors.New("secondary refresh returned empty token")
	}

	current.Value = body.AccessToken
	if body.RefreshToken != "" {
		current.RefreshToken = body.RefreshToken
	}
	if body.ExpiresIn > 0 {
		current.ExpiresAt = m.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	} else {
		current.ExpiresAt = m.now().Add(m.cfg.PrimaryTTL)
	}

	return current, nil
}
