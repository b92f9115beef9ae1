package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PartitionKeyRange identifies one physical partition of a collection.
type PartitionKeyRange struct {
	ID           string `json:"id"`
	MinInclusive string `json:"minInclusive,omitempty"`
	MaxExclusive string `json:"maxExclusive,omitempty"`
}

type partitionKeyRangeList struct {
	ResourceID string              `json:"_rid"`
	Ranges     []PartitionKeyRange `json:"PartitionKeyRanges"`
	Count      int                 `json:"_count"`
}

// RangeRoute is the routing identity of one physical partition: the
// collection's internal resource id combined with the range id, in the form
// the x-ms-documentdb-partitionkeyrangeid header expects.
type RangeRoute struct {
	RangeID   string
	RoutingID string
}

// ResolveRanges fetches the collection's current partition key ranges and
// composes their routing ids in response order. Ranges split and merge as
// the collection grows, so the set is re-fetched on every top-level
// cross-partition query and never cached.
func (c *Client) ResolveRanges(ctx context.Context, dbID, collID string) ([]RangeRoute, OpResult, error) {
	collLink := collectionLink(dbID, collID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "pkranges",
		resourceLink: collLink,
		path:         collLink + "/pkranges",
	})
	if err != nil {
		return nil, OpResult{}, err
	}

	var list partitionKeyRangeList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal partition key ranges: %w", err)
	}

	routes := make([]RangeRoute, 0, len(list.Ranges))
	for _, r := range list.Ranges {
		routes = append(routes, RangeRoute{
			RangeID:   r.ID,
			RoutingID: list.ResourceID + "," + r.ID,
		})
	}
	return routes, resp.Result, nil
}
