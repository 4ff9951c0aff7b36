package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	headerAPIKey         = "x-api-key"
	headerClientVersion  = "x-client-version"
	headerResVersion     = "x-res-version"
	headerDeviceType     = "x-device-type"
	headerIdempotencyKey = "x-idempotency-key"

	contentTypeFrame = "application/octet-stream"
)

// HTTPConfig describes the API endpoint and the client identity headers
// attached to every exchange.
type HTTPConfig struct {
	BaseURL       string
	ExchangePath  string
	APIKey        string
	ClientVersion string
	ResVersion    string
	DeviceType    string
	UserAgent     string
	Timeout       time.Duration
	MaxBodyBytes  int64
}

func (c HTTPConfig) WithDefaults() HTTPConfig {
	if c.ExchangePath == "" {
		c.ExchangePath = "/v1/exchange"
	}
	if c.DeviceType == "" {
		c.DeviceType = "android"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 16 * 1024 * 1024
	}
	return c
}

// HTTPCarrier posts encoded frames to the game-service API and returns the
// complete response body for the codec.
type HTTPCarrier struct {
	cfg    HTTPConfig
	client *http.Client
}

var ErrBaseURLRequired = errors.New("transport: base url required")

func NewHTTPCarrier(cfg HTTPConfig) (*HTTPCarrier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	cfg = cfg.WithDefaults()
	return &HTTPCarrier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *HTTPCarrier) Exchange(ctx context.Context, req ExchangeRequest) ([]byte, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.ExchangePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Op: "exchange", Err: err}
	}
	httpReq.Header.Set("Content-Type", contentTypeFrame)
	httpReq.Header.Set("Accept", contentTypeFrame)
	if c.cfg.APIKey != "" {
		httpReq.Header.Set(headerAPIKey, c.cfg.APIKey)
	}
	if c.cfg.ClientVersion != "" {
		httpReq.Header.Set(headerClientVersion, c.cfg.ClientVersion)
	}
	if c.cfg.ResVersion != "" {
		httpReq.Header.Set(headerResVersion, c.cfg.ResVersion)
	}
	httpReq.Header.Set(headerDeviceType, c.cfg.DeviceType)
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}
	if req.SessionToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.SessionToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "exchange", Temporary: isTemporaryNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &Error{Op: "exchange", Temporary: true, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Op: "exchange", Status: resp.StatusCode, Err: ErrUnauthorized}
	case resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500:
		log.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("transport: retryable status")
		return nil, &Error{Op: "exchange", Status: resp.StatusCode, Temporary: true, Err: fmt.Errorf("server status %d", resp.StatusCode)}
	default:
		return nil, &Error{Op: "exchange", Status: resp.StatusCode, Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
}

func isTemporaryNetErr(err error) bool {
	// A caller-initiated cancellation must not be retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Connection resets and refused dials arrive as *url.Error wrapping
	// syscall errors; all of them are transient from the client's view.
	return true
}
