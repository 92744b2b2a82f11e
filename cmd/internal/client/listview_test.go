package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestListView_StaleResultDiscarded(t *testing.T) {
	t.Parallel()

	v := &ListView{}

	seq1 := v.nextSeq()
	seq2 := v.nextSeq()

	// The newer fetch lands first.
	if !v.applyIfLatest(seq2, []byte(`{"q":"new"}`)) {
		t.Fatalf("latest result not applied")
	}
	// The older one arrives late and must be dropped.
	if v.applyIfLatest(seq1, []byte(`{"q":"old"}`)) {
		t.Fatalf("stale result applied")
	}
	// Replaying the already applied sequence is a no-op too.
	if v.applyIfLatest(seq2, []byte(`{"q":"replay"}`)) {
		t.Fatalf("duplicate result applied")
	}

	data, seq := v.Snapshot()
	if seq != seq2 || string(data) != `{"q":"new"}` {
		t.Fatalf("snapshot = %s (seq %d)", data, seq)
	}
}

func TestListView_DecodeBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	v := NewListView(nil, "/api/tasks")
	var dst struct{}
	ok, err := v.Decode(&dst)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ok {
		t.Fatalf("Decode reported data before any fetch")
	}
}

func TestListView_TrailingRecompute(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		queries []string
	)
	gate := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		first := len(queries) == 1
		mu.Unlock()
		if first {
			<-gate
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"q":"` + r.URL.RawQuery + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v := NewListView(c, "/api/tasks")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- v.Refresh(ctx, "q=a") }()

	// Wait for the first fetch to reach the server and park behind the gate.
	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(queries)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first fetch never arrived")
		case <-time.After(time.Millisecond):
		}
	}

	// Three rapid query changes while in flight: each overwrites the single
	// pending slot, so only the last survives as the trailing recompute.
	for _, q := range []string{"q=b", "q=c", "q=d"} {
		if err := v.Refresh(ctx, q); err != nil {
			t.Fatalf("Refresh(%s): %v", q, err)
		}
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("flight: %v", err)
	}

	mu.Lock()
	got := append([]string(nil), queries...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "q=a" || got[1] != "q=d" {
		t.Fatalf("server saw queries %v, want [q=a q=d]", got)
	}

	var dst struct {
		Q string `json:"q"`
	}
	ok, err := v.Decode(&dst)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if dst.Q != "q=d" {
		t.Fatalf("applied query = %q, want q=d", dst.Q)
	}
}
