package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// WrapHTTPClient propagates the caller's trace context on outgoing requests.
func WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = propagatingTransport{base: base}
	return &wrapped
}

type propagatingTransport struct {
	base http.RoundTripper
}

func (t propagatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	InjectContext(req.Context(), propagation.HeaderCarrier(out.Header))
	return t.base.RoundTrip(out)
}
