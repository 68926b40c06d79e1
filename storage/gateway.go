package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// GatewayFetcher implements interfaces.ContentFetcher with plain HTTP GETs
// against a public IPFS gateway.
type GatewayFetcher struct {
	client *retryablehttp.Client
	log    *slog.Logger
}

type GatewayOpts struct {
	// Timeout bounds a single request.
	Timeout time.Duration
	// MaxAttempts is the total number of requests made, including the first.
	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewGatewayFetcher creates a fetcher. Freshly added content can take a
// moment to propagate to the gateway, so 404 responses are retried as well
// as transport errors and 5xx.
func NewGatewayFetcher(opts GatewayOpts, log *slog.Logger) *GatewayFetcher {
	client := retryablehttp.NewClient()
	client.Logger = log
	client.RetryMax = max(opts.MaxAttempts-1, 0)
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp != nil && resp.StatusCode == http.StatusNotFound {
			return ctx.Err() == nil, ctx.Err()
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	// Hand the last response back instead of a generic "giving up" error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &GatewayFetcher{client: client, log: log}
}

// Fetch downloads url. Any failure is a degraded publication.
func (f *GatewayFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrPublicationDegraded, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: content not reachable at %s: %v", interfaces.ErrPublicationDegraded, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: content not reachable: HTTP %d %s", interfaces.ErrPublicationDegraded, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gateway response: %v", interfaces.ErrPublicationDegraded, err)
	}

	f.log.Debug("Fetched content from gateway",
		slog.String("url", url),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}
