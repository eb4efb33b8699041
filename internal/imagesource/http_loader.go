package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLoader downloads images referenced by URL
type HTTPLoader struct {
	client   *http.Client
	maxBytes int64
	backoff  time.Duration
}

// NewHTTPLoader creates an HTTP image loader
func NewHTTPLoader(maxBytes int64) *HTTPLoader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	// Transport tuned for single image downloads
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPLoader{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		backoff:  time.Second,
	}
}

// Load fetches ref with up to 3 attempts. 4xx responses are not retried;
// network errors and 5xx responses are, with a linear backoff.
func (h *HTTPLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * h.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, retryable, err := h.fetch(ctx, ref)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch image after 3 attempts: %w", lastErr)
}

func (h *HTTPLoader) fetch(ctx context.Context, ref string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, */*")
	req.Header.Set("User-Agent", "Olive-Inspector/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, false, fmt.Errorf("image exceeds %d bytes", h.maxBytes)
	}
	if err := checkDecodable(data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}
