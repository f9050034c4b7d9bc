// Package mirror talks to Myrient-style HTTP mirrors: it lists directory
// indexes, derives direct download URLs for catalog-identified ROMs, and
// optionally probes candidates for existence.
package mirror

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romfetch-downloader/romfetch/internal/catalog"
	"github.com/romfetch-downloader/romfetch/internal/logging"
)

// DefaultUserAgent mimics a browser; some mirrors throttle unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// HTTP client tuning. Connect fails fast, reads stay generous for large
// files; the client itself carries no overall timeout so multi-gigabyte
// transfers are not cut off.
const (
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
	idleConnTimeout       = 90 * time.Second
	listTimeout           = 60 * time.Second
	probeTimeout          = 15 * time.Second
)

// Client is a mirror HTTP client. Safe for concurrent use.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string

	catalog *catalog.Catalog
	log     zerolog.Logger

	mu         sync.Mutex
	probeCache map[string]bool // existence probe result keyed by candidate URL
}

// New creates a mirror client over the given catalog.
func New(cat *catalog.Catalog) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   4,
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   0,
			Transport: transport,
		},
		UserAgent:  DefaultUserAgent,
		catalog:    cat,
		log:        logging.New("mirror"),
		probeCache: make(map[string]bool),
	}
}

// Catalog returns the catalog this client resolves systems against.
func (c *Client) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Client) newRequest(ctx context.Context, method, rawurl string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawurl, nil)
	if err != nil {
		return nil, err
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	return req, nil
}
