package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/docdb-go/docdb-client/internal/testutil"
)

// testMasterKey is 32 zero bytes, base64-encoded.
var testMasterKey = base64.StdEncoding.EncodeToString(make([]byte, 32))

// newTestClient builds a client against the mock gateway with a fast retry
// schedule. The mock verifies every request's signature.
func newTestClient(t *testing.T, mock *testutil.MockGateway) *Client {
	t.Helper()

	if err := mock.RequireSignature(testMasterKey); err != nil {
		t.Fatalf("RequireSignature: %v", err)
	}

	cfg := DefaultConfig(mock.URL(), testMasterKey)
	cfg.RetryPolicy = NewRetryPolicy(1, 1, 1) // nanoseconds; retries stay cheap
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name:        "valid config",
			cfg:         DefaultConfig("https://acct.example.com", testMasterKey),
			expectError: false,
		},
		{
			name:        "missing endpoint",
			cfg:         DefaultConfig("", testMasterKey),
			expectError: true,
		},
		{
			name:        "missing key",
			cfg:         DefaultConfig("https://acct.example.com", ""),
			expectError: true,
		},
		{
			name:        "malformed key",
			cfg:         DefaultConfig("https://acct.example.com", "!!!"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestDo_SignsEveryRequest(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetJSONResponse(http.MethodGet, "dbs/db1", http.StatusOK,
		`{"id":"db1","_rid":"rid1"}`, map[string]string{"x-ms-request-charge": "1"})

	c := newTestClient(t, mock)

	db, res, err := c.GetDatabase(context.Background(), "db1")
	if err != nil {
		t.Fatalf("GetDatabase: %v", err)
	}
	if db == nil || db.ID != "db1" {
		t.Errorf("Database = %+v, want id db1", db)
	}
	if res.RequestCharge != 1 {
		t.Errorf("RequestCharge = %v, want 1", res.RequestCharge)
	}

	// The mock rejects any request whose signature does not verify, so
	// reaching here proves canonical string and header agree. Check the
	// companion headers were transmitted too.
	hdr := mock.LastRequestHeader
	if hdr.Get("x-ms-date") == "" {
		t.Error("Missing x-ms-date header")
	}
	if hdr.Get("x-ms-version") == "" {
		t.Error("Missing x-ms-version header")
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.FailTimes(http.MethodGet, "dbs/db1", 2, http.StatusServiceUnavailable,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"db1"}`))
		})

	c := newTestClient(t, mock)

	db, _, err := c.GetDatabase(context.Background(), "db1")
	if err != nil {
		t.Fatalf("GetDatabase after transient failures: %v", err)
	}
	if db == nil || db.ID != "db1" {
		t.Errorf("Database = %+v, want id db1", db)
	}
	if mock.RequestCount != 3 {
		t.Errorf("RequestCount = %d, want 3 (two failures + success)", mock.RequestCount)
	}
}

func TestDo_PermanentErrorCarriesContext(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetJSONResponse(http.MethodGet, "dbs/db1", http.StatusBadRequest,
		`{"code":"BadRequest","message":"malformed"}`, nil)

	c := newTestClient(t, mock)

	_, _, err := c.GetDatabase(context.Background(), "db1")
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	ge, ok := err.(*GatewayError)
	if !ok {
		t.Fatalf("Expected *GatewayError, got %T", err)
	}
	if ge.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", ge.StatusCode)
	}
	if ge.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", ge.Method)
	}
	if ge.ResourceLink != "dbs/db1" {
		t.Errorf("ResourceLink = %q, want dbs/db1", ge.ResourceLink)
	}
	if ge.Body == "" {
		t.Error("Body is empty, want raw response text")
	}
	if mock.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1 (no retry on permanent error)", mock.RequestCount)
	}
}

func TestDo_RetryExhaustionSurfacesLastError(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetJSONResponse(http.MethodGet, "dbs/db1", http.StatusTooManyRequests,
		`{"code":"TooManyRequests"}`, nil)

	c := newTestClient(t, mock)

	_, _, err := c.GetDatabase(context.Background(), "db1")
	if err == nil {
		t.Fatal("Expected error after exhaustion")
	}

	ge, ok := err.(*GatewayError)
	if !ok {
		t.Fatalf("Expected *GatewayError, got %T", err)
	}
	if ge.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", ge.StatusCode)
	}
	if ge.Class != ErrorClassTransientServer {
		t.Errorf("Class = %v, want transient_server", ge.Class)
	}

	wantAttempts := c.RetryPolicy().Attempts()
	if mock.RequestCount != wantAttempts {
		t.Errorf("RequestCount = %d, want %d", mock.RequestCount, wantAttempts)
	}
}

func TestListDatabases(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetJSONResponse(http.MethodGet, "dbs", http.StatusOK,
		`{"_count":2,"Databases":[{"id":"db1"},{"id":"db2"}]}`, nil)

	c := newTestClient(t, mock)

	dbs, _, err := c.ListDatabases(context.Background())
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if len(dbs) != 2 || dbs[0].ID != "db1" || dbs[1].ID != "db2" {
		t.Errorf("Databases = %+v, want db1, db2", dbs)
	}
}

func TestDeleteDatabase_NotFound(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetJSONResponse(http.MethodDelete, "dbs/gone", http.StatusNotFound,
		`{"code":"NotFound"}`, map[string]string{"x-ms-request-charge": "1.24"})

	c := newTestClient(t, mock)

	deleted, res, err := c.DeleteDatabase(context.Background(), "gone")
	if err != nil {
		t.Fatalf("DeleteDatabase: %v", err)
	}
	if deleted {
		t.Error("deleted = true, want false for missing database")
	}
	if res.RequestCharge != 1.24 {
		t.Errorf("RequestCharge = %v, want 1.24", res.RequestCharge)
	}
}
