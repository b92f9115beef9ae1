// Package testutil provides testing utilities for the document service
// client.
package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// MockPage describes one page of a mock query response.
type MockPage struct {
	// Documents are raw JSON values returned in order.
	Documents []string

	// Token is the continuation token pointing at the next page; empty on
	// the final page.
	Token string

	// Charge and DurationMs populate the accounting headers.
	Charge     float64
	DurationMs float64
}

// MockGateway is a configurable mock document service gateway for testing.
// It speaks the wire protocol the client produces: signed requests,
// continuation-token pagination and partition key range listings.
type MockGateway struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	pageFeeds map[string]map[string][]MockPage

	masterKey []byte

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockGateway creates a new mock gateway server.
func NewMockGateway() *MockGateway {
	mock := &MockGateway{
		handlers:  make(map[string]http.HandlerFunc),
		pageFeeds: make(map[string]map[string][]MockPage),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		if !mock.authorize(w, r) {
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+strings.Trim(r.URL.Path, "/")]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"code":"NotFound","message":"no handler for %s %s"}`, r.Method, r.URL.Path)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGateway) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGateway) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
}

// RequireSignature makes the gateway verify every request's authorization
// token against the given base64 master key, exactly as the service does.
func (m *MockGateway) RequireSignature(masterKey string) error {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	m.mu.Lock()
	m.masterKey = key
	m.mu.Unlock()
	return nil
}

// authorize checks the three auth headers, recomputing the signature when a
// master key was configured. Responds 401 and returns false on failure.
func (m *MockGateway) authorize(w http.ResponseWriter, r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	date := r.Header.Get("x-ms-date")
	version := r.Header.Get("x-ms-version")

	if authHeader == "" || date == "" || version == "" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"Unauthorized","message":"missing authorization headers"}`)
		return false
	}

	m.mu.RLock()
	key := m.masterKey
	m.mu.RUnlock()
	if key == nil {
		return true
	}

	resourceType, resourceLink := resourceFromPath(r.URL.Path)
	payload := strings.ToLower(r.Method) + "\n" +
		resourceType + "\n" +
		resourceLink + "\n" +
		strings.ToLower(date) + "\n" +
		"\n"

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	expected := url.QueryEscape("type=master&ver=1.0&sig=" + sig)

	if authHeader != expected {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"Unauthorized","message":"signature mismatch"}`)
		return false
	}
	return true
}

// resourceFromPath derives the signing resource type and link from a request
// path. Paths alternate type and id segments; an odd segment count addresses
// a feed (type is the last segment, link its parent), an even count an item
// (type is the second-to-last segment, link the full path).
func resourceFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}
	if len(parts)%2 == 1 {
		return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], "/")
	}
	return parts[len(parts)-2], strings.Join(parts, "/")
}

// SetHandler sets a custom handler for a method and path.
func (m *MockGateway) SetHandler(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+strings.Trim(path, "/")] = handler
}

// Handler returns the handler registered for a method and path, so tests
// can wrap it.
func (m *MockGateway) Handler(method, path string) (http.HandlerFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[method+" "+strings.Trim(path, "/")]
	return h, ok
}

// SetJSONResponse configures a fixed JSON response for a method and path.
func (m *MockGateway) SetJSONResponse(method, path string, status int, body string, headers map[string]string) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// FailTimes wraps a handler so the first n matching requests answer with the
// given status before the real handler takes over. Used to exercise the
// retry path.
func (m *MockGateway) FailTimes(method, path string, n, status int, handler http.HandlerFunc) {
	var mu sync.Mutex
	failures := 0
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		shouldFail := failures < n
		if shouldFail {
			failures++
		}
		mu.Unlock()

		if shouldFail {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"code":"ServiceBusy","message":"simulated %d"}`, status)
			return
		}
		handler(w, r)
	})
}

// SetPartitionKeyRanges configures the pkranges feed of a collection.
func (m *MockGateway) SetPartitionKeyRanges(dbID, collID, collectionRid string, rangeIDs []string) {
	type pkRange struct {
		ID string `json:"id"`
	}
	ranges := make([]pkRange, 0, len(rangeIDs))
	for _, id := range rangeIDs {
		ranges = append(ranges, pkRange{ID: id})
	}
	body, _ := json.Marshal(map[string]any{
		"_rid":               collectionRid,
		"_count":             len(ranges),
		"PartitionKeyRanges": ranges,
	})
	path := fmt.Sprintf("dbs/%s/colls/%s/pkranges", dbID, collID)
	m.SetJSONResponse(http.MethodGet, path, http.StatusOK, string(body), nil)
}

// SetQueryPages serves a paginated query feed on a collection's docs path.
// Requests are matched to pages by continuation token and, when rangeKey is
// non-empty, by the x-ms-documentdb-partitionkeyrangeid header. Multiple
// ranges can be registered on the same path before use.
func (m *MockGateway) SetQueryPages(dbID, collID, rangeKey string, pages []MockPage) {
	path := fmt.Sprintf("dbs/%s/colls/%s/docs", dbID, collID)

	m.mu.Lock()
	key := http.MethodPost + " " + path
	existing, ok := m.pageFeeds[key]
	if !ok {
		existing = make(map[string][]MockPage)
		m.pageFeeds[key] = existing
	}
	existing[rangeKey] = pages
	m.mu.Unlock()

	m.SetHandler(http.MethodPost, path, func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		feed := m.pageFeeds[key][r.Header.Get("x-ms-documentdb-partitionkeyrangeid")]
		m.mu.RUnlock()

		if feed == nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":"BadRequest","message":"no page feed for range"}`)
			return
		}

		continuation := r.Header.Get("x-ms-continuation")
		idx := 0
		if continuation != "" {
			idx = -1
			for i, p := range feed {
				if p.Token == continuation {
					idx = i + 1
					break
				}
			}
			if idx < 0 || idx >= len(feed) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, `{"code":"BadRequest","message":"unknown continuation %s"}`, continuation)
				return
			}
		}

		page := feed[idx]
		docs := make([]json.RawMessage, 0, len(page.Documents))
		for _, d := range page.Documents {
			docs = append(docs, json.RawMessage(d))
		}
		body, _ := json.Marshal(map[string]any{
			"Documents": docs,
			"_count":    len(docs),
		})

		if page.Token != "" {
			w.Header().Set("x-ms-continuation", page.Token)
		}
		w.Header().Set("x-ms-request-charge", fmt.Sprintf("%g", page.Charge))
		w.Header().Set("x-ms-request-duration-ms", fmt.Sprintf("%g", page.DurationMs))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}
