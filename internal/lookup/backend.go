package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodyBytes caps how much of a backend response is read.
const maxBodyBytes = 1 << 20

// Response is a backend reply as seen by the controller.
type Response struct {
	StatusCode int
	// StatusText is the reason phrase, e.g. "Too Many Requests".
	StatusText string
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Backend issues the weather request. An error means no response was received.
type Backend interface {
	GetWeather(ctx context.Context, city string) (Response, error)
}

// HTTPBackend calls GET {baseURL}/getweather?city=<city>.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend returns an HTTPBackend. timeout <= 0 leaves the client
// without a deadline of its own.
func NewHTTPBackend(baseURL string, timeout time.Duration) (*HTTPBackend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (b *HTTPBackend) GetWeather(ctx context.Context, city string) (Response, error) {
	q := url.Values{}
	q.Set("city", city)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/getweather?"+q.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	return Response{
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       body,
	}, nil
}
