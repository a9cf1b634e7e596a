package iracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/driverscout/driverscout/internal/config"
	"github.com/driverscout/driverscout/models"

	resty "github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	TOKEN_URL         = "https://oauth.iracing.com/oauth2/token"
	DATA_BASE_URL     = "https://members-ng.iracing.com/data"
	STATS_PATH_FORMAT = "/driver_stats_by_category/%s"

	tokenExpiryThreshold = 60 * time.Second
	defaultTokenLifetime = 600 * time.Second
	maxAttempts          = 3
	rateWindow           = time.Minute
)

// Interface for the upstream client used by the ingestion service.
type Client interface {
	StreamCategoryCSV(ctx context.Context, category string) (*RowStream, error)
	DownloadCategoryCSV(ctx context.Context, category string) ([]models.NormalizedRow, error)
}

// IRacingClient authenticates against the OAuth token endpoint and retrieves
// category stat CSVs. All upstream calls share one retry policy and the
// authenticated/plain GET helpers share one rolling-window rate gate.
type IRacingClient struct {
	tokenURL   string
	dataURL    string
	cfg        config.Settings
	httpClient *resty.Client
	gate       *rateGate

	// backoffBase is 2^attempt * backoffBase between retries; tests shrink it.
	backoffBase time.Duration

	tokenMu sync.Mutex
	token   *models.TokenInfo
}

func NewClient(cfg config.Settings) *IRacingClient {
	httpClient := resty.New()
	httpClient.SetTimeout(cfg.HTTPTimeout)
	return &IRacingClient{
		tokenURL:    TOKEN_URL,
		dataURL:     DATA_BASE_URL,
		cfg:         cfg,
		httpClient:  httpClient,
		gate:        newRateGate(cfg.RateLimitRPM, rateWindow),
		backoffBase: time.Second,
	}
}

// login performs the password_limited grant and replaces the held token.
// Callers must hold tokenMu.
func (c *IRacingClient) login(ctx context.Context) (models.TokenInfo, error) {
	form := map[string]string{
		"grant_type":    "password_limited",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"username":      c.cfg.Username,
		"password":      c.cfg.Password,
		"scope":         c.cfg.Scope,
	}
	token, err := c.postToken(ctx, form)
	if err != nil {
		return models.TokenInfo{}, err
	}
	logrus.Info("Obtained new access token")
	c.token = &token
	return token, nil
}

// refresh exchanges the refresh token, degrading to login when no refresh
// token is held or the refresh grant fails. Callers must hold tokenMu.
func (c *IRacingClient) refresh(ctx context.Context) (models.TokenInfo, error) {
	if c.token == nil || c.token.RefreshToken == "" {
		return c.login(ctx)
	}
	form := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": c.token.RefreshToken,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"scope":         c.cfg.Scope,
	}
	token, err := c.postToken(ctx, form)
	if err != nil {
		logrus.WithError(err).Warn("Token refresh failed, falling back to login")
		return c.login(ctx)
	}
	logrus.Info("Refreshed access token")
	c.token = &token
	return token, nil
}

// ensureToken returns the held token unless it is expiring. Token mutation
// is serialized per client instance so concurrent category fetches do not
// race redundant refreshes.
func (c *IRacingClient) ensureToken(ctx context.Context) (models.TokenInfo, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token == nil {
		return c.login(ctx)
	}
	if c.token.IsExpiring(tokenExpiryThreshold) {
		return c.refresh(ctx)
	}
	return *c.token, nil
}

func (c *IRacingClient) refreshToken(ctx context.Context) (models.TokenInfo, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.refresh(ctx)
}

func (c *IRacingClient) loginToken(ctx context.Context) (models.TokenInfo, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.login(ctx)
}

func (c *IRacingClient) postToken(ctx context.Context, form map[string]string) (models.TokenInfo, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return models.TokenInfo{}, err
			}
		}
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetFormData(form).
			Post(c.tokenURL)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusBadRequest {
			lastErr = fmt.Errorf("token endpoint returned %d", resp.StatusCode())
			continue
		}
		var body models.TokenResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			lastErr = err
			continue
		}
		return buildToken(body), nil
	}
	return models.TokenInfo{}, fmt.Errorf("%w: %v", ErrAuthFailure, lastErr)
}

func buildToken(body models.TokenResponse) models.TokenInfo {
	lifetime := time.Duration(body.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return models.TokenInfo{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(lifetime),
	}
}

// authorizedGet performs a bearer-authenticated GET under the shared retry
// policy. A 401 consumes an attempt: the first triggers a refresh, the
// second a full login, then the call gives up.
func (c *IRacingClient) authorizedGet(ctx context.Context, url string) (*resty.Response, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := c.gate.wait(ctx); err != nil {
			return nil, err
		}
		logrus.Debug("Sending authorized GET request on url: " + url)
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetAuthToken(token.AccessToken).
			Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			lastErr = fmt.Errorf("GET %s returned 401", url)
			switch attempt {
			case 0:
				if token, err = c.refreshToken(ctx); err != nil {
					return nil, err
				}
			case 1:
				if token, err = c.loginToken(ctx); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusBadRequest {
			lastErr = fmt.Errorf("GET %s returned %d", url, resp.StatusCode())
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

// unauthorizedGetStream performs a plain GET with an unparsed body so large
// CSV payloads can be consumed incrementally.
func (c *IRacingClient) unauthorizedGetStream(ctx context.Context, url string) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := c.gate.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusBadRequest {
			resp.RawBody().Close()
			lastErr = fmt.Errorf("GET %s returned %d", url, resp.StatusCode())
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

// StreamCategoryCSV resolves the signed CSV link for the category and
// returns a forward-only row stream over it. The caller owns Close.
func (c *IRacingClient) StreamCategoryCSV(ctx context.Context, category string) (*RowStream, error) {
	url := c.dataURL + fmt.Sprintf(STATS_PATH_FORMAT, category)
	resp, err := c.authorizedGet(ctx, url)
	if err != nil {
		return nil, err
	}

	var link models.LinkResponse
	if err := json.Unmarshal(resp.Body(), &link); err != nil {
		return nil, fmt.Errorf("decoding link response for %s: %w", category, err)
	}
	if link.Link == "" {
		return nil, ErrMissingLink
	}

	csvResp, err := c.unauthorizedGetStream(ctx, link.Link)
	if err != nil {
		return nil, err
	}
	return NewRowStream(csvResp.RawBody()), nil
}

// DownloadCategoryCSV drains a category stream into memory. Convenience
// path for callers that need the full roster at once.
func (c *IRacingClient) DownloadCategoryCSV(ctx context.Context, category string) ([]models.NormalizedRow, error) {
	stream, err := c.StreamCategoryCSV(ctx, category)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var rows []models.NormalizedRow
	for {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (c *IRacingClient) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoffBase << attempt)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
