package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/signal"
)

const (
	defaultRESTBaseURL = "https://fapi.binance.com"
	tickerPath         = "/fapi/v1/ticker/24hr"
	defaultTimeout     = 10 * time.Second
)

// RESTSource polls the USDⓈ-M futures 24h ticker endpoint.
type RESTSource struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewRESTSource targets baseURL (default Binance futures).
func NewRESTSource(baseURL string, timeout time.Duration) *RESTSource {
	if baseURL == "" {
		baseURL = defaultRESTBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RESTSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		client:  &fasthttp.Client{Name: "futuresbot-go"},
	}
}

func (s *RESTSource) Name() string { return ProviderREST }

// Tickers fetches one batch. The request is bounded by the context deadline or the source timeout, whichever is sooner.
func (s *RESTSource) Tickers(ctx context.Context) ([]signal.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + tickerPath)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("ticker request: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("ticker request: unexpected status %d: %s", code, truncate(resp.Body(), 200))
	}
	rows, err := decodeRows(resp.Body())
	if err != nil {
		return nil, err
	}
	metrics.TickersTotal.WithLabelValues(ProviderREST).Add(float64(len(rows)))
	return rows, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
