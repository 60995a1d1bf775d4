package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

const (
	// commonUserAgent is the user agent string used for all HTTP requests.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// defaultHTTPTimeout is the default timeout for provider HTTP requests.
	defaultHTTPTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxHTMLReadSize limits how much of a provider page we read.
	maxHTMLReadSize = 512 * 1024
)

// ErrTooManyRedirects is returned when too many redirects are encountered.
var ErrTooManyRedirects = errors.New("too many redirects")

// newHTTPClient creates an HTTP client with standard settings and redirect
// validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// fetchJSON performs a GET request and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, reqURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}

	return nil
}

// fetchHTML fetches page HTML with browser-like headers and a size limit.
func fetchHTML(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider page returned status %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLReadSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(bodyBytes), nil
}

var iso8601DurationRegex = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// parseISO8601Duration decodes durations like "PT3M32S" into seconds. Apple
// Music embeds these in the JSON-LD blob on song pages.
func parseISO8601Duration(s string) (float64, error) {
	m := iso8601DurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	var seconds float64
	if m[1] != "" {
		hours, _ := strconv.Atoi(m[1])
		seconds += float64(hours) * 3600
	}
	if m[2] != "" {
		minutes, _ := strconv.Atoi(m[2])
		seconds += float64(minutes) * 60
	}
	if m[3] != "" {
		secs, _ := strconv.ParseFloat(m[3], 64)
		seconds += secs
	}

	if seconds == 0 && m[1] == "" && m[2] == "" && m[3] == "" {
		return 0, fmt.Errorf("empty ISO-8601 duration %q", s)
	}

	return seconds, nil
}
