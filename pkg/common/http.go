package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed VERSION
var version string

// Version is the build version embedded in the binary.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent is sent on every outbound portal request.
func UserAgent() string {
	return "SolarPull/" + Version()
}

type headerTransport struct {
	transport http.RoundTripper
	headers   http.Header
}

// RoundTrip sets the fixed headers on a clone of req before handing it off.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		req.Header[k] = vs
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an instrumented http client that identifies itself with
// the SolarPull user-agent.
func HTTPClient(timeout time.Duration) *http.Client {
	h := http.Header{}
	h.Set("User-Agent", UserAgent())
	return &http.Client{
		Transport: otelhttp.NewTransport(&headerTransport{
			transport: http.DefaultTransport,
			headers:   h,
		}),
		Timeout: timeout,
	}
}
