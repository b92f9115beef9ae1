package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// PartitionKeyDefinition declares the partition key paths of a collection.
type PartitionKeyDefinition struct {
	Paths []string `json:"paths"`
	Kind  string   `json:"kind"`
}

// Collection is a document collection resource.
type Collection struct {
	ID           string                  `json:"id"`
	ResourceID   string                  `json:"_rid,omitempty"`
	SelfLink     string                  `json:"_self,omitempty"`
	ETag         string                  `json:"_etag,omitempty"`
	PartitionKey *PartitionKeyDefinition `json:"partitionKey,omitempty"`
}

type collectionList struct {
	Collections []Collection `json:"DocumentCollections"`
	Count       int          `json:"_count"`
}

// CollectionOptions configures collection creation.
type CollectionOptions struct {
	// PartitionKeyPath is the document path the service routes on, e.g.
	// "/tenantId". Required for partitioned collections.
	PartitionKeyPath string

	// Throughput provisions request units for the collection. Zero omits
	// the offer header and accepts the service default.
	Throughput int
}

func collectionLink(dbID, collID string) string {
	return "dbs/" + dbID + "/colls/" + collID
}

// CreateCollection creates a collection in a database.
func (c *Client) CreateCollection(ctx context.Context, dbID, collID string, opts CollectionOptions) (*Collection, OpResult, error) {
	coll := Collection{ID: collID}
	if opts.PartitionKeyPath != "" {
		coll.PartitionKey = &PartitionKeyDefinition{
			Paths: []string{opts.PartitionKeyPath},
			Kind:  "Hash",
		}
	}

	body, err := json.Marshal(coll)
	if err != nil {
		return nil, OpResult{}, fmt.Errorf("marshal collection: %w", err)
	}

	headers := map[string]string{}
	if opts.Throughput > 0 {
		headers[headerOfferThroughput] = strconv.Itoa(opts.Throughput)
	}

	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodPost,
		resourceType: "colls",
		resourceLink: databaseLink(dbID),
		path:         databaseLink(dbID) + "/colls",
		body:         body,
		headers:      headers,
	})
	if err != nil {
		return nil, OpResult{}, err
	}

	var created Collection
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal collection: %w", err)
	}
	return &created, resp.Result, nil
}

// GetCollection reads a collection. 404 is absence, not an error.
func (c *Client) GetCollection(ctx context.Context, dbID, collID string) (*Collection, OpResult, error) {
	link := collectionLink(dbID, collID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "colls",
		resourceLink: link,
		path:         link,
		allowStatus:  []int{http.StatusNotFound},
	})
	if err != nil {
		return nil, OpResult{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.Result, nil
	}

	var coll Collection
	if err := json.Unmarshal(resp.Body, &coll); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal collection: %w", err)
	}
	return &coll, resp.Result, nil
}

// DeleteCollection deletes a collection. Returns false without error when
// the collection does not exist.
func (c *Client) DeleteCollection(ctx context.Context, dbID, collID string) (bool, OpResult, error) {
	link := collectionLink(dbID, collID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodDelete,
		resourceType: "colls",
		resourceLink: link,
		path:         link,
		allowStatus:  []int{http.StatusNotFound},
	})
	if err != nil {
		return false, OpResult{}, err
	}
	return resp.StatusCode != http.StatusNotFound, resp.Result, nil
}

// ListCollections lists the collections of a database.
func (c *Client) ListCollections(ctx context.Context, dbID string) ([]Collection, OpResult, error) {
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "colls",
		resourceLink: databaseLink(dbID),
		path:         databaseLink(dbID) + "/colls",
	})
	if err != nil {
		return nil, OpResult{}, err
	}

	var list collectionList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal collection list: %w", err)
	}
	return list.Collections, resp.Result, nil
}
