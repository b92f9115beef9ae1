package client

import (
	"context"
	"testing"

	"github.com/docdb-go/docdb-client/internal/testutil"
)

func TestResolveRanges(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetPartitionKeyRanges("db1", "c1", "cRid", []string{"0", "1", "2"})

	c := newTestClient(t, mock)

	routes, _, err := c.ResolveRanges(context.Background(), "db1", "c1")
	if err != nil {
		t.Fatalf("ResolveRanges: %v", err)
	}

	want := []RangeRoute{
		{RangeID: "0", RoutingID: "cRid,0"},
		{RangeID: "1", RoutingID: "cRid,1"},
		{RangeID: "2", RoutingID: "cRid,2"},
	}
	if len(routes) != len(want) {
		t.Fatalf("routes = %d, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r != want[i] {
			t.Errorf("routes[%d] = %+v, want %+v", i, r, want[i])
		}
	}
}

func TestResolveRanges_NeverCached(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()

	mock.SetPartitionKeyRanges("db1", "c1", "cRid", []string{"0"})

	c := newTestClient(t, mock)

	for i := 0; i < 3; i++ {
		if _, _, err := c.ResolveRanges(context.Background(), "db1", "c1"); err != nil {
			t.Fatalf("ResolveRanges #%d: %v", i+1, err)
		}
	}

	// Ranges split and merge at any time; every resolution must hit the
	// gateway.
	if mock.RequestCount != 3 {
		t.Errorf("RequestCount = %d, want 3 (one fetch per resolution)", mock.RequestCount)
	}
}
