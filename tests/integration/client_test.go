package integration

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/docdb-go/docdb-client/internal/testutil"
	"github.com/docdb-go/docdb-client/pkg/client"
	"github.com/docdb-go/docdb-client/pkg/sessions"
)

var testMasterKey = base64.StdEncoding.EncodeToString(make([]byte, 32))

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockGateway, mutate func(*client.Config)) *client.Client {
	t.Helper()

	if err := mock.RequireSignature(testMasterKey); err != nil {
		t.Fatal(err)
	}

	cfg := client.DefaultConfig(mock.URL(), testMasterKey)
	cfg.RetryPolicy = client.NewRetryPolicy(
		10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

// TestFullQueryFlow exercises the complete path: range resolution →
// per-range paginated fan-out with retries → merged aggregate.
func TestFullQueryFlow(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetPartitionKeyRanges("shop", "orders", "oRid", []string{"0", "1"})
	mock.SetQueryPages("shop", "orders", "oRid,0", []testutil.MockPage{
		{Documents: []string{`{"id":"o1","total":10}`}, Token: "p1", Charge: 2, DurationMs: 4},
		{Documents: []string{`{"id":"o2","total":20}`}, Charge: 2, DurationMs: 4},
	})
	mock.SetQueryPages("shop", "orders", "oRid,1", []testutil.MockPage{
		{Documents: []string{`{"id":"o3","total":30}`}, Charge: 2, DurationMs: 4},
	})

	// Make the first range's second page throttle once; the driver must
	// absorb it.
	original, _ := mock.Handler(http.MethodPost, "dbs/shop/colls/orders/docs")
	throttled := false
	mock.SetHandler(http.MethodPost, "dbs/shop/colls/orders/docs", func(w http.ResponseWriter, r *http.Request) {
		if !throttled && r.Header.Get("x-ms-continuation") == "p1" {
			throttled = true
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"TooManyRequests"}`))
			return
		}
		original(w, r)
	})

	c := newClient(t, mock, nil)

	agg, err := c.QueryCrossPartition(context.Background(), "shop", "orders",
		client.NewQuery("SELECT * FROM c"), client.CombineConcat, nil)
	if err != nil {
		t.Fatalf("QueryCrossPartition: %v", err)
	}

	if len(agg.Documents) != 3 {
		t.Errorf("Documents = %d, want 3", len(agg.Documents))
	}
	if agg.RequestCharge != 6 {
		t.Errorf("RequestCharge = %v, want 6", agg.RequestCharge)
	}
	if !throttled {
		t.Error("throttle branch never exercised")
	}
}

// TestSessionTokensThroughRedis verifies cross-process read-your-writes:
// a write through one client instance makes its session token visible to a
// second instance sharing the Redis store.
func TestSessionTokensThroughRedis(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetHandler(http.MethodPost, "dbs/shop/colls/orders/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-session-token", "0:314")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"o1"}`))
	})

	var readToken string
	mock.SetHandler(http.MethodGet, "dbs/shop/colls/orders/docs/o1", func(w http.ResponseWriter, r *http.Request) {
		readToken = r.Header.Get("x-ms-session-token")
		w.Write([]byte(`{"id":"o1"}`))
	})

	store := sessions.NewRedisStore(redisClient, time.Minute)

	writer := newClient(t, mock, func(cfg *client.Config) {
		cfg.UseSessionConsistency = true
		cfg.Sessions = store
	})
	reader := newClient(t, mock, func(cfg *client.Config) {
		cfg.UseSessionConsistency = true
		cfg.Sessions = sessions.NewRedisStore(redisClient, time.Minute)
	})

	ctx := context.Background()
	if _, _, err := writer.CreateDocument(ctx, "shop", "orders", map[string]string{"id": "o1"}, nil); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, _, err := reader.GetDocument(ctx, "shop", "orders", "o1", nil); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}

	if readToken != "0:314" {
		t.Errorf("read session token = %q, want 0:314 via shared Redis store", readToken)
	}
}
