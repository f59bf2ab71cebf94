// Package platform talks to the external community platform: profile and inventory visibility
// probes and the full inventory import.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/errs"
)

// DefaultUserAgent is sent with every request; the community site rejects empty agents.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const iconBase = "https://community.cloudflare.steamstatic.com/economy/image/"

var externalIDRe = regexp.MustCompile(`^7656119\d{10}$`)

// ValidExternalID reports whether id looks like a 64-bit community id.
func ValidExternalID(id string) bool { return externalIDRe.MatchString(id) }

// Config holds connection settings shared by the validator and the fetcher.
type Config struct {
	BaseURL   string        // community base, e.g. https://steamcommunity.com
	AppID     int           // catalog app scope
	ContextID string        // catalog context scope
	Timeout   time.Duration // per-call timeout
}

// Client is a thin HTTP client with per-call timeouts and error classification.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// NewClient constructs a platform client. hc may be nil.
func NewClient(cfg Config, hc *http.Client, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ContextID == "" {
		cfg.ContextID = "2"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

// get performs a GET under its own timeout and returns the body of a 2xx response.
// Non-2xx statuses and transport failures come back as *errs.Error.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.E(errs.KindConfiguration, 0, "BAD_URL", url, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, snippet(body))
	}
	return body, nil
}

// classifyStatus maps an HTTP status onto the error taxonomy.
func classifyStatus(code int, detail string) *errs.Error {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.E(errs.KindRateLimit, code, "RATE_LIMITED", detail, nil)
	case code == http.StatusForbidden:
		return errs.E(errs.KindPrivacy, code, "FORBIDDEN", detail, nil)
	case code == http.StatusUnauthorized:
		return errs.E(errs.KindConfiguration, code, "UNAUTHORIZED", detail, nil)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errs.E(errs.KindTimeout, code, "TIMEOUT", detail, nil)
	case code >= 500:
		return errs.E(errs.KindServer, code, "SERVER_ERROR", detail, nil)
	case code >= 400:
		return errs.E(errs.KindBadRequest, code, "BAD_REQUEST", detail, nil)
	default:
		return errs.E(errs.KindUnknown, code, "UNEXPECTED_STATUS", detail, nil)
	}
}

// classifyTransport maps network failures; timeouts are retryable like a 5xx.
func classifyTransport(err error) *errs.Error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return errs.E(errs.KindTimeout, 0, "TIMEOUT", "", err)
	case errors.Is(err, context.Canceled):
		return errs.E(errs.KindUnknown, 0, "CANCELED", "", err)
	default:
		return errs.E(errs.KindServer, 0, "TRANSPORT", "", err)
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (c *Client) inventoryURL(externalID string, count int) string {
	return fmt.Sprintf("%s/inventory/%s/%d/%s?l=english&count=%d", c.cfg.BaseURL, externalID, c.cfg.AppID, c.cfg.ContextID, count)
}

func (c *Client) legacyInventoryURL(externalID string) string {
	return fmt.Sprintf("%s/profiles/%s/inventory/json/%d/%s", c.cfg.BaseURL, externalID, c.cfg.AppID, c.cfg.ContextID)
}

func (c *Client) profileURL(externalID string) string {
	return fmt.Sprintf("%s/profiles/%s/?xml=1", c.cfg.BaseURL, externalID)
}
