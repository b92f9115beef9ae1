package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Database is a database resource.
type Database struct {
	ID         string `json:"id"`
	ResourceID string `json:"_rid,omitempty"`
	SelfLink   string `json:"_self,omitempty"`
	ETag       string `json:"_etag,omitempty"`
}

type databaseList struct {
	Databases []Database `json:"Databases"`
	Count     int        `json:"_count"`
}

func databaseLink(dbID string) string {
	return "dbs/" + dbID
}

// CreateDatabase creates a database.
func (c *Client) CreateDatabase(ctx context.Context, dbID string) (*Database, OpResult, error) {
	body, err := json.Marshal(Database{ID: dbID})
	if err != nil {
		return nil, OpResult{}, fmt.Errorf("marshal database: %w", err)
	}

	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodPost,
		resourceType: "dbs",
		resourceLink: "",
		path:         "dbs",
		body:         body,
	})
	if err != nil {
		return nil, OpResult{}, err
	}

	var db Database
	if err := json.Unmarshal(resp.Body, &db); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal database: %w", err)
	}
	return &db, resp.Result, nil
}

// GetDatabase reads a database. A missing database yields (nil, result, nil);
// 404 is absence, not an error.
func (c *Client) GetDatabase(ctx context.Context, dbID string) (*Database, OpResult, error) {
	link := databaseLink(dbID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "dbs",
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

	var db Database
	if err := json.Unmarshal(resp.Body, &db); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal database: %w", err)
	}
	return &db, resp.Result, nil
}

// DeleteDatabase deletes a database. Returns false without error when the
// database does not exist.
func (c *Client) DeleteDatabase(ctx context.Context, dbID string) (bool, OpResult, error) {
	link := databaseLink(dbID)
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodDelete,
		resourceType: "dbs",
		resourceLink: link,
		path:         link,
		allowStatus:  []int{http.StatusNotFound},
	})
	if err != nil {
		return false, OpResult{}, err
	}
	return resp.StatusCode != http.StatusNotFound, resp.Result, nil
}

// ListDatabases lists all databases in the account.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, OpResult, error) {
	resp, err := c.do(ctx, requestSpec{
		method:       http.MethodGet,
		resourceType: "dbs",
		resourceLink: "",
		path:         "dbs",
	})
	if err != nil {
		return nil, OpResult{}, err
	}

	var list databaseList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, resp.Result, fmt.Errorf("unmarshal database list: %w", err)
	}
	return list.Databases, resp.Result, nil
}
