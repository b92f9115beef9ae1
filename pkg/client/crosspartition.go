package client

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CombineMode selects how per-range results are merged.
type CombineMode string

const (
	// CombineConcat concatenates the per-range record sequences in
	// range-resolution order.
	CombineConcat CombineMode = "concat"

	// CombineSum reduces the concatenated sequence numerically; every
	// element must already be a number (e.g. a per-range SELECT VALUE SUM).
	CombineSum CombineMode = "sum"
)

// AggregateResult is the merged outcome of a cross-partition query.
type AggregateResult struct {
	// Documents holds the concatenated records in range-resolution order.
	// Empty for CombineSum.
	Documents []json.RawMessage

	// Value is the numeric reduction for CombineSum.
	Value float64

	// RequestCharge sums the range-resolution call and every page of every
	// range.
	RequestCharge float64

	// RequestDurationMs sums gateway-reported durations the same way.
	RequestDurationMs float64
}

// QueryCrossPartition runs a query against every physical partition range of
// a collection and merges the results.
//
// Ranges are resolved fresh, then each range runs its own paginated query
// concurrently, scoped by that range's routing id with the cross-partition
// flag set. Concurrency is capped by Config.MaxFanOut. The merge is a join
// barrier: all ranges must succeed, and the first permanent failure aborts
// the whole call with no partial result. Record order across ranges follows
// range-resolution order, not any global sort; an ORDER BY requirement must
// be encoded in the query per range or applied by the caller afterwards.
func (c *Client) QueryCrossPartition(ctx context.Context, dbID, collID string, query Query, mode CombineMode, opts *QueryOptions) (*AggregateResult, error) {
	routes, rangesResult, err := c.ResolveRanges(ctx, dbID, collID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("collection", collectionLink(dbID, collID)).
		Int("ranges", len(routes)).
		Str("mode", string(mode)).
		Msg("Starting cross-partition fan-out")

	limit := c.maxFanOut
	if len(routes) < limit {
		limit = len(routes)
	}
	if limit < 1 {
		limit = 1
	}

	// Each range accumulates into its own slot; slots are only read after
	// Wait, so no locking is needed.
	perRange := make([]*QueryResult, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, route := range routes {
		g.Go(func() error {
			rangeOpts := QueryOptions{
				PartitionKeyRangeID:  route.RoutingID,
				EnableCrossPartition: true,
			}
			if opts != nil {
				rangeOpts.SessionToken = opts.SessionToken
				rangeOpts.MaxItemCount = opts.MaxItemCount
			}

			res, err := c.QueryDocuments(gctx, dbID, collID, query, &rangeOpts)
			if err != nil {
				return fmt.Errorf("range %s: %w", route.RangeID, err)
			}
			perRange[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg := &AggregateResult{
		RequestCharge:     rangesResult.RequestCharge,
		RequestDurationMs: rangesResult.RequestDurationMs,
	}
	for _, res := range perRange {
		agg.Documents = append(agg.Documents, res.Documents...)
		agg.RequestCharge += res.RequestCharge
		agg.RequestDurationMs += res.RequestDurationMs
	}

	if mode == CombineSum {
		var sum float64
		for _, doc := range agg.Documents {
			var v float64
			if err := json.Unmarshal(doc, &v); err != nil {
				return nil, fmt.Errorf("sum combine: non-numeric element %s: %w", string(doc), err)
			}
			sum += v
		}
		agg.Value = sum
		agg.Documents = nil
	}

	return agg, nil
}
