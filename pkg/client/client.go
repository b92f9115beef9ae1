// Package client provides the document service client: master-key request
// signing, transient-error retry, continuation-token pagination and
// cross-partition query aggregation over the service's HTTP+JSON gateway.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docdb-go/docdb-client/pkg/auth"
	"github.com/docdb-go/docdb-client/pkg/sessions"
)

// Request headers produced by the client.
const (
	headerDate            = "x-ms-date"
	headerVersion         = "x-ms-version"
	headerContinuation    = "x-ms-continuation"
	headerMaxItemCount    = "x-ms-max-item-count"
	headerIsQuery         = "x-ms-documentdb-isquery"
	headerPartitionKey    = "x-ms-documentdb-partitionkey"
	headerRangeID         = "x-ms-documentdb-partitionkeyrangeid"
	headerCrossPartition  = "x-ms-documentdb-query-enablecrosspartition"
	headerUpsert          = "x-ms-documentdb-is-upsert"
	headerSessionToken    = "x-ms-session-token"
	headerOfferThroughput = "x-ms-offer-throughput"

	contentTypeQuery = "application/query+json"
)

// Response headers consumed by the client.
const (
	headerRequestCharge   = "x-ms-request-charge"
	headerRequestDuration = "x-ms-request-duration-ms"
)

// Prometheus metrics for gateway operations.
var (
	docdbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_requests_total",
		Help: "Total gateway requests by resource type and status",
	}, []string{"resource", "status"})

	docdbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docdb_request_duration_seconds",
		Help:    "Gateway request duration in seconds by resource type",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"resource"})

	docdbErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_errors_total",
		Help: "Total gateway errors by class",
	}, []string{"class"})

	docdbRequestChargeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_request_charge_total",
		Help: "Cumulative request units consumed by resource type",
	}, []string{"resource"})
)

// Client is the document service client. A Client is safe for concurrent
// use; all mutable per-call state lives on the stack of each operation.
type Client struct {
	endpoint   string
	cred       *auth.Credential
	httpClient *http.Client
	policy     RetryPolicy
	sessions   sessions.Store
	useSession bool
	maxFanOut  int
	logger     zerolog.Logger
	now        func() time.Time
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the account base URL, e.g. "https://acct.documents.example.com".
	Endpoint string

	// MasterKey is the base64-encoded account master key.
	MasterKey string

	// RetryPolicy is the backoff schedule applied to every exchange.
	RetryPolicy RetryPolicy

	// MaxFanOut caps concurrent per-range queries in cross-partition
	// aggregation.
	MaxFanOut int

	// UseSessionConsistency replays recorded session tokens on reads and
	// queries for read-your-writes within (or across, with a shared store)
	// processes.
	UseSessionConsistency bool

	// Sessions is the session-token store. Defaults to an in-process store;
	// pass a sessions.RedisStore to share tokens across processes.
	Sessions sessions.Store

	// HTTPClient overrides the underlying HTTP client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(endpoint, masterKey string) Config {
	return Config{
		Endpoint:    endpoint,
		MasterKey:   masterKey,
		RetryPolicy: DefaultRetryPolicy(),
		MaxFanOut:   8,
	}
}

// New creates a new document service client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	cred, err := auth.NewCredential(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	policy := cfg.RetryPolicy
	if len(policy.delays) == 0 {
		policy = DefaultRetryPolicy()
	}

	maxFanOut := cfg.MaxFanOut
	if maxFanOut <= 0 {
		maxFanOut = 8
	}

	store := cfg.Sessions
	if store == nil {
		store = sessions.NewMemoryStore()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	logger := log.With().Str("component", "docdb-client").Logger()

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		cred:       cred,
		httpClient: httpClient,
		policy:     policy,
		sessions:   store,
		useSession: cfg.UseSessionConsistency,
		maxFanOut:  maxFanOut,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// OpResult carries the gateway accounting headers of one completed call.
type OpResult struct {
	StatusCode        int
	RequestCharge     float64
	RequestDurationMs float64
	SessionToken      string
	ETag              string
}

// requestSpec describes one logical gateway exchange. Signing and the date
// header are regenerated on every attempt, never carried across retries.
type requestSpec struct {
	method       string
	resourceType string
	resourceLink string
	path         string
	body         []byte
	headers      map[string]string

	// sessionLink scopes session-token record/replay, normally the
	// collection link. Empty disables session handling for the call.
	sessionLink string
	isWrite     bool

	// allowStatus lists non-2xx statuses the caller interprets itself
	// (404 on get/delete, 412 on conditional replace).
	allowStatus []int
}

// gatewayResponse is a fully drained gateway response.
type gatewayResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Result     OpResult
}

// do executes one retried gateway exchange. Each attempt builds and signs a
// fresh request; the response body is always read to completion so the
// underlying connection can be reused, including on early-return statuses.
func (c *Client) do(ctx context.Context, spec requestSpec) (*gatewayResponse, error) {
	start := time.Now()
	defer func() {
		docdbRequestDuration.WithLabelValues(spec.resourceType).Observe(time.Since(start).Seconds())
	}()

	var final *gatewayResponse

	err := retryWithPolicy(ctx, c.logger, c.policy, func() error {
		resp, err := c.attempt(ctx, spec)
		if err != nil {
			docdbErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			docdbRequestsTotal.WithLabelValues(spec.resourceType, "network_error").Inc()
			return fmt.Errorf("%s %s: %w", spec.method, spec.path, err)
		}

		docdbRequestsTotal.WithLabelValues(spec.resourceType, strconv.Itoa(resp.StatusCode)).Inc()
		docdbRequestChargeTotal.WithLabelValues(spec.resourceType).Add(resp.Result.RequestCharge)

		if resp.StatusCode >= 400 {
			class := classifyStatus(resp.StatusCode, string(resp.Body))
			if shouldRetry(class) {
				docdbErrorsTotal.WithLabelValues(string(class)).Inc()
				c.logger.Warn().
					Str("method", spec.method).
					Str("path", spec.path).
					Int("status", resp.StatusCode).
					Str("error_class", string(class)).
					Msg("Transient gateway error")
				return &GatewayError{
					StatusCode:   resp.StatusCode,
					Class:        class,
					Method:       spec.method,
					ResourceLink: spec.path,
					Body:         string(resp.Body),
				}
			}
		}

		final = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	if final.StatusCode >= 400 && !statusAllowed(final.StatusCode, spec.allowStatus) {
		docdbErrorsTotal.WithLabelValues(string(ErrorClassPermanent)).Inc()
		return nil, &GatewayError{
			StatusCode:   final.StatusCode,
			Class:        ErrorClassPermanent,
			Method:       spec.method,
			ResourceLink: spec.path,
			Body:         string(final.Body),
		}
	}

	c.recordSession(ctx, spec, final)
	return final, nil
}

// attempt performs a single signed exchange.
func (c *Client) attempt(ctx context.Context, spec requestSpec) (*gatewayResponse, error) {
	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.endpoint+"/"+spec.path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	hdrs := c.cred.Sign(spec.method, spec.resourceType, spec.resourceLink, c.now())
	req.Header.Set("Authorization", hdrs.Authorization)
	req.Header.Set(headerDate, hdrs.Date)
	req.Header.Set(headerVersion, hdrs.Version)
	req.Header.Set("Accept", "application/json")
	if spec.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range spec.headers {
		req.Header.Set(k, v)
	}

	if c.useSession && !spec.isWrite && spec.sessionLink != "" && req.Header.Get(headerSessionToken) == "" {
		if token, err := c.sessions.Get(ctx, spec.sessionLink); err == nil && token != "" {
			req.Header.Set(headerSessionToken, token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Drained unconditionally, also for statuses the caller short-circuits
	// on, so the connection returns to the pool.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &gatewayResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Result:     parseOpResult(resp),
	}, nil
}

// recordSession stores the gateway's session token after a successful write.
func (c *Client) recordSession(ctx context.Context, spec requestSpec, resp *gatewayResponse) {
	if !c.useSession || spec.sessionLink == "" || resp.Result.SessionToken == "" {
		return
	}
	if err := c.sessions.Set(ctx, spec.sessionLink, resp.Result.SessionToken); err != nil {
		c.logger.Warn().Err(err).Str("collection", spec.sessionLink).Msg("Failed to store session token")
	}
}

// parseOpResult extracts the accounting headers from a gateway response.
func parseOpResult(resp *http.Response) OpResult {
	r := OpResult{
		StatusCode:   resp.StatusCode,
		SessionToken: resp.Header.Get(headerSessionToken),
		ETag:         resp.Header.Get("ETag"),
	}
	if v := resp.Header.Get(headerRequestCharge); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			r.RequestCharge = f
		}
	}
	if v := resp.Header.Get(headerRequestDuration); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			r.RequestDurationMs = f
		}
	}
	return r
}

func statusAllowed(status int, allowed []int) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock overrides the signing clock (for testing).
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// RetryPolicy returns the client's retry policy.
func (c *Client) RetryPolicy() RetryPolicy {
	return c.policy
}
