package linkhub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

const (
	// Browser user agent; some sites reject default Go or bot agents.
	fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// maxRedirects caps redirect chains so a redirect loop cannot hang a fetch.
	maxRedirects = 5

	// maxPageBytes caps how much of a page body is read and parsed.
	maxPageBytes = 5 * 1024 * 1024
)

// Page is a fetched and parsed HTML document together with its final URL,
// kept for resolving relative references during extraction.
type Page struct {
	URL *url.URL
	Doc *html.Node
}

// Fetcher retrieves URLs over HTTP and parses the response as HTML.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher whose network operations are bounded by
// timeout. The transport is wrapped with otelhttp so trace context propagates
// to the fetched site.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: fetchUserAgent,
	}
}

// Fetch retrieves targetURL and parses the body as HTML.
// Failures are distinguishable via errors.Is/As: ErrFetchTimeout, ErrEmptyBody,
// *HTTPStatusError, or a wrapped transport error.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	// html.Parse is error-tolerant; it only fails on reader errors, which
	// cannot happen with a bytes.Reader. Malformed markup still yields a tree.
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Redirects may have moved us; resolve later relative URLs against the
	// final location.
	finalURL := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Page{URL: finalURL, Doc: doc}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// http.Client surfaces its own Timeout as a url.Error with this text.
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}
