package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceName keys the single token row this process maintains.
const ServiceName = "amocrm"

// Token rows are overwritten on every refresh; one row per external service.
type Token struct {
	Service      string `gorm:"primaryKey;column:service"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string `gorm:"not null"`
	ExpiresAt    int64  `gorm:"not null"` // epoch seconds
}

func (Token) TableName() string { return "oauth_tokens" }

var ErrNoTokens = errors.New("amocrm: no stored tokens, run OAuth setup first")

// expiryMargin forces a refresh slightly before the CRM would reject the
// access token, so in-flight requests never race the expiry.
const expiryMargin = 60 * time.Second

// TokenManager owns the persisted OAuth token pair and refreshes it on
// demand. Callers never see refresh mechanics, only a valid access token.
type TokenManager struct {
	db      *gorm.DB
	clock   clock.Clock
	cfg     config.AmoConfig
	baseURL string
	http    *http.Client
	log     *zap.Logger

	// Serializes refresh: amoCRM refresh tokens are single-use, so two
	// concurrent callers must never both enter the refresh grant.
	mu            sync.Mutex
	bootstrapOnce sync.Once
}

func NewTokenManager(db *gorm.DB, clk clock.Clock, cfg config.Config, log *zap.Logger) *TokenManager {
	return newTokenManager(db, clk, cfg.Amo, "https://"+cfg.Amo.Subdomain+".amocrm.ru", log)
}

func newTokenManager(db *gorm.DB, clk clock.Clock, cfg config.AmoConfig, baseURL string, log *zap.Logger) *TokenManager {
	return &TokenManager{
		db:      db,
		clock:   clk,
		cfg:     cfg,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Named("amocrm.tokens"),
	}
}

// EnsureAccessToken returns a token valid for at least expiryMargin,
// refreshing and persisting a new pair when the stored one is stale.
func (m *TokenManager) EnsureAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if token.ExpiresAt > m.clock.Now().Add(expiryMargin).Unix() {
		return token.AccessToken, nil
	}

	grant, err := m.grant(ctx, map[string]string{
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": token.RefreshToken,
		"redirect_uri":  m.cfg.RedirectURI,
	})
	if err != nil {
		return "", fmt.Errorf("amocrm refresh: %w", err)
	}
	if grant.ExpiresIn <= 0 {
		return "", fmt.Errorf("amocrm refresh: invalid expires_in %d", grant.ExpiresIn)
	}

	expiresAt := m.clock.Now().Add(time.Duration(grant.ExpiresIn) * time.Second).Unix()
	if err := m.save(ctx, grant.AccessToken, grant.RefreshToken, expiresAt); err != nil {
		return "", err
	}

	m.log.Info("access token refreshed", zap.Int64("expires_at", expiresAt))
	return grant.AccessToken, nil
}

// Exchange trades an authorization code for the initial token pair and
// persists it. Used by the OAuth callback endpoint.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("amocrm: empty authorization code")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	grant, err := m.grant(ctx, map[string]string{
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  m.cfg.RedirectURI,
	})
	if err != nil {
		return fmt.Errorf("amocrm exchange: %w", err)
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	expiresAt := m.clock.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
	if err := m.save(ctx, grant.AccessToken, grant.RefreshToken, expiresAt); err != nil {
		return err
	}

	m.log.Info("authorization code exchanged", zap.Int64("expires_at", expiresAt))
	return nil
}

type grantResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *TokenManager) grant(ctx context.Context, form map[string]string) (grantResponse, error) {
	payload, err := json.Marshal(form)
	if err != nil {
		return grantResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/oauth2/access_token", bytes.NewReader(payload))
	if err != nil {
		return grantResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return grantResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return grantResponse{}, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return grantResponse{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var grant grantResponse
	if err := json.Unmarshal(body, &grant); err != nil {
		return grantResponse{}, fmt.Errorf("decode grant response: %w", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return grantResponse{}, fmt.Errorf("grant response missing tokens: %s", string(body))
	}
	return grant, nil
}

func (m *TokenManager) load(ctx context.Context) (Token, error) {
	m.bootstrapOnce.Do(func() { m.bootstrap(ctx) })

	var token Token
	err := m.db.WithContext(ctx).First(&token, "service = ?", ServiceName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Token{}, ErrNoTokens
	}
	if err != nil {
		return Token{}, err
	}
	return token, nil
}

// bootstrap seeds the token row from the environment once, only until a
// real row exists. Lets a fresh deployment skip the browser OAuth dance.
func (m *TokenManager) bootstrap(ctx context.Context) {
	if m.cfg.BootstrapAccessToken == "" || m.cfg.BootstrapRefreshToken == "" {
		return
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&Token{}).Where("service = ?", ServiceName).Count(&count).Error; err != nil || count > 0 {
		return
	}

	expiresAt := m.cfg.BootstrapExpiresAt
	if expiresAt <= 0 {
		expiresAt = m.clock.Now().Add(time.Hour).Unix()
	}
	if err := m.save(ctx, m.cfg.BootstrapAccessToken, m.cfg.BootstrapRefreshToken, expiresAt); err != nil {
		m.log.Warn("token bootstrap failed", zap.Error(err))
		return
	}
	m.log.Info("token row seeded from environment")
}

func (m *TokenManager) save(ctx context.Context, access, refresh string, expiresAt int64) error {
	token := Token{
		Service:      ServiceName,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at"}),
	}).Create(&token).Error
}
