package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DocumentOptions configures single-document operations. All fields are
// optional; zero values omit the corresponding header.
type DocumentOptions struct {
	// PartitionKey routes the operation to the document's logical
	// partition. Required on partitioned collections.
	PartitionKey any

	// SessionToken pins the read to a session. Overrides any token the
	// client's session store would replay.
	SessionToken string

	// IfMatch makes a replace conditional on the document's current etag.
	IfMatch string

	// Upsert turns create into create-or-replace.
	Upsert bool
}

func documentLink(dbID, collID, docID string) string {
	return collectionLink(dbID, collID) + "/docs/" + docID
}

// partitionKeyHeader encodes a partition key value as the gateway expects:
// a one-element JSON array.
func partitionKeyHeader(value any) (string, error) {
	b, err := json.Marshal([]any{value})
	if err != nil {
		return "", fmt.Errorf("marshal partition key: %w", err)
	}
	return string(b), nil
}

func (o *DocumentOptions) headers() (map[string]string, error) {
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
	if o.SessionToken != "" {
		h[headerSessionToken] = o.SessionToken
	}
	if o.IfMatch != "" {
		h["If-Match"] = o.IfMatch
	}
	if o.Upsert {
		h[headerUpsert] = "true"
	}
	return h, nil
}

// CreateDocument creates a document, or upserts it when opts.Upsert is set.
// doc is marshaled as the document body and the stored form is returned.
func (c *Client) CreateDocument(ctx context.Context, dbID, collID string, doc any, opts *DocumentOptions) (json.RawMessage, OpResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, OpResult{}, fmt.Errorf("marshal document: %w", err)
	}

	headers, err := opts.headers()
	if err != nil {
		return nil, OpResult{}, err
	}

	collLink := collectionLink(dbID, collID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodPost,
		resourceType: "docs",
		resourceLink: collLink,
		path:         collLink + "/docs",
		body:         body,
		headers:      headers,
		sessionLink:  collLink,
		isWrite:      true,
	})
	if err != nil {
		return nil, OpResult{}, err
	}
	return json.RawMessage(resp.Body), resp.Result, nil
}

// GetDocument reads a document. A missing document yields (nil, result, nil);
// 404 is absence, not an error.
func (c *Client) GetDocument(ctx context.Context, dbID, collID, docID string, opts *DocumentOptions) (json.RawMessage, OpResult, error) {
	headers, err := opts.headers()
	if err != nil {
		return nil, OpResult{}, err
	}

	link := documentLink(dbID, collID, docID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "docs",
		resourceLink: link,
		path:         link,
		headers:      headers,
		sessionLink:  collectionLink(dbID, collID),
		allowStatus:  []int{http.StatusNotFound},
	})
	if err != nil {
		return nil, OpResult{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.Result, nil
	}
	return json.RawMessage(resp.Body), resp.Result, nil
}

// ReplaceDocument replaces a document. With opts.IfMatch set, a concurrent
// update makes the gateway answer 412; that surfaces as didReplace=false,
// not as an error, and the result still carries the request charge.
func (c *Client) ReplaceDocument(ctx context.Context, dbID, collID, docID string, doc any, opts *DocumentOptions) (json.RawMessage, bool, OpResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, false, OpResult{}, fmt.Errorf("marshal document: %w", err)
	}

	headers, err := opts.headers()
	if err != nil {
		return nil, false, OpResult{}, err
	}

	link := documentLink(dbID, collID, docID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodPut,
		resourceType: "docs",
		resourceLink: link,
		path:         link,
		body:         body,
		headers:      headers,
		sessionLink:  collectionLink(dbID, collID),
		isWrite:      true,
		allowStatus:  []int{http.StatusPreconditionFailed},
	})
	if err != nil {
		return nil, false, OpResult{}, err
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil, false, resp.Result, nil
	}
	return json.RawMessage(resp.Body), true, resp.Result, nil
}

// DeleteDocument deletes a document. Returns false without error when the
// document does not exist.
func (c *Client) DeleteDocument(ctx context.Context, dbID, collID, docID string, opts *DocumentOptions) (bool, OpResult, error) {
	headers, err := opts.headers()
	if err != nil {
		return false, OpResult{}, err
	}

	link := documentLink(dbID, collID, docID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodDelete,
		resourceType: "docs",
		resourceLink: link,
		path:         link,
		headers:      headers,
		sessionLink:  collectionLink(dbID, collID),
		isWrite:      true,
		allowStatus:  []int{http.StatusNotFound},
	})
	if err != nil {
		return false, OpResult{}, err
	}
	return resp.StatusCode != http.StatusNotFound, resp.Result, nil
}
