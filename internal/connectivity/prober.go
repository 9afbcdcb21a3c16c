package connectivity

import (
	"context"
	"net/http"
	"time"
)

// HTTPProber probes reachability with a HEAD request against the sync
// endpoint (or any configured URL). Any response, including an error status,
// proves the network path is up; only transport failures count as offline.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for the given URL.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable reports whether the probe target currently answers.
func (p *HTTPProber) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	return true
}
