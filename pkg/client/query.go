package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for query pagination.
var (
	docdbQueryPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_query_pages_total",
		Help: "Total query result pages fetched",
	})

	docdbQueryDocumentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_query_documents_total",
		Help: "Total documents returned across all query pages",
	})
)

// Query is a parameterized query in the service's SQL dialect.
type Query struct {
	Text       string           `json:"query"`
	Parameters []QueryParameter `json:"parameters,omitempty"`
}

// QueryParameter binds a named parameter, e.g. {"@tenant", "acme"}.
type QueryParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// NewQuery builds a query from text and name/value parameter pairs.
func NewQuery(text string, params ...QueryParameter) Query {
	return Query{Text: text, Parameters: params}
}

// P is a shorthand QueryParameter constructor.
func P(name string, value any) QueryParameter {
	return QueryParameter{Name: name, Value: value}
}

// QueryOptions configures a query run. All fields are optional.
type QueryOptions struct {
	// PartitionKey restricts the query to one logical partition.
	PartitionKey any

	// PartitionKeyRangeID routes the query to one physical partition range
	// (cross-partition fan-out sets this per range).
	PartitionKeyRangeID string

	// EnableCrossPartition permits the gateway to accept a query that is
	// not scoped to a single logical partition.
	EnableCrossPartition bool

	// SessionToken pins reads to a session.
	SessionToken string

	// MaxItemCount caps documents per page. Zero accepts the service
	// default.
	MaxItemCount int
}

func (o *QueryOptions) headers() (map[string]string, error) {
	h := map[string]string{}
	if o == nil {
		return h, nil
	}
	if o.PartitionKey != nil {
		v, err := partitionKeyHeader(o.PartitionKey)
		if err != nil {
			return nil, err
		}
		h[headerPartitionKey] = v
	}
	if o.PartitionKeyRangeID != "" {
		h[headerRangeID] = o.PartitionKeyRangeID
	}
	if o.EnableCrossPartition {
		h[headerCrossPartition] = "true"
	}
	if o.SessionToken != "" {
		h[headerSessionToken] = o.SessionToken
	}
	if o.MaxItemCount > 0 {
		h[headerMaxItemCount] = strconv.Itoa(o.MaxItemCount)
	}
	return h, nil
}

// QueryResult accumulates a full paginated query run.
type QueryResult struct {
	// Documents holds every record in page-arrival order; within a page,
	// gateway order is preserved. No reordering or deduplication.
	Documents []json.RawMessage

	// RequestCharge is the sum over all fetched pages.
	RequestCharge float64

	// RequestDurationMs is the gateway-reported duration summed over all
	// fetched pages.
	RequestDurationMs float64

	// Pages is the number of pages fetched.
	Pages int
}

type queryPage struct {
	Documents []json.RawMessage `json:"Documents"`
	Count     int               `json:"_count"`
}

// QueryDocuments runs a query against one collection, following continuation
// tokens until the final page. Every page is signed and retried
// independently, so a transient failure on a later page never discards
// earlier pages; a permanent failure aborts the run and the caller sees no
// partial result.
func (c *Client) QueryDocuments(ctx context.Context, dbID, collID string, query Query, opts *QueryOptions) (*QueryResult, error) {
	headers, err := opts.headers()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	collLink := collectionLink(dbID, collID)
	result := &QueryResult{}
	continuation := ""

	for {
		pageHeaders := make(map[string]string, len(headers)+3)
		for k, v := range headers {
			pageHeaders[k] = v
		}
		pageHeaders[headerIsQuery] = "true"
		pageHeaders["Content-Type"] = contentTypeQuery
		if continuation != "" {
			pageHeaders[headerContinuation] = continuation
		}

		resp, err := c.do(ctx, requestSpec{
			method:       http.MethodPost,
			resourceType: "docs",
			resourceLink: collLink,
			path:         collLink + "/docs",
			body:         body,
			headers:      pageHeaders,
			sessionLink:  collLink,
		})
		if err != nil {
			return nil, err
		}

		var page queryPage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("unmarshal query page: %w", err)
		}

		result.Documents = append(result.Documents, page.Documents...)
		result.RequestCharge += resp.Result.RequestCharge
		result.RequestDurationMs += resp.Result.RequestDurationMs
		result.Pages++

		docdbQueryPagesTotal.Inc()
		docdbQueryDocumentsTotal.Add(float64(len(page.Documents)))

		continuation = resp.Header.Get(headerContinuation)
		if continuation == "" {
			break
		}

		c.logger.Debug().
			Str("collection", collLink).
			Int("pages", result.Pages).
			Int("documents", len(result.Documents)).
			Msg("Following continuation token")
	}

	return result, nil
}
