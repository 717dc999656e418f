package platform

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// NewHTTPClient returns an http.Client that retries transport errors, 429 and
// 5xx responses with exponential backoff.
func NewHTTPClient(retries int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			next:    http.DefaultTransport,
			retries: retries,
			backoff: 200 * time.Millisecond,
		},
	}
}

type retryTransport struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	rewindable := req.Body == nil || req.GetBody != nil

	for i := 0; i <= t.retries; i++ {
		attempt := req
		if i > 0 {
			attempt = req.Clone(req.Context())
			if req.GetBody != nil {
				body, bErr := req.GetBody()
				if bErr != nil {
					return nil, bErr
				}
				attempt.Body = body
			}
		}

		resp, err = t.next.RoundTrip(attempt)
		if err == nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if i == t.retries || !rewindable {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		log.Warn().Err(err).Str("url", req.URL.Redacted()).Int("attempt", i+1).Msg("HTTP request failed, retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(1<<i) * t.backoff):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", t.retries, err)
	}
	return resp, nil
}
