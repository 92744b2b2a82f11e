package client

import (
	"context"
	"encoding/json"
	"sync"
)

// ListView keeps the latest fetched result for one listing endpoint and
// sequences refreshes around it.
//
// Rapid query changes collapse: while a fetch is in flight, new queries
// overwrite a single pending slot and execute once as a trailing recompute,
// never as an unbounded queue. Every issued fetch is tagged with a
// monotonically increasing sequence number and its response is applied only
// if that number is still the latest issued; stale responses are discarded
// silently. Discarding is the only form of cancellation, in-flight transport
// calls are never aborted.
type ListView struct {
	c    *Client
	path string

	mu         sync.Mutex
	latestSeq  uint64
	appliedSeq uint64
	data       json.RawMessage
	inFlight   bool
	pending    *string
}

// NewListView creates a view over path (e.g. "/api/tasks").
func NewListView(c *Client, path string) *ListView {
	return &ListView{c: c, path: path}
}

// Refresh fetches path with rawQuery and applies the result. When a fetch is
// already in flight the query is parked as the pending recompute and Refresh
// returns immediately; the holder of the flight executes it afterwards.
func (v *ListView) Refresh(ctx context.Context, rawQuery string) error {
	v.mu.Lock()
	if v.inFlight {
		q := rawQuery
		v.pending = &q
		v.mu.Unlock()
		return nil
	}
	v.inFlight = true
	v.mu.Unlock()

	return v.runFlight(ctx, rawQuery)
}

func (v *ListView) runFlight(ctx context.Context, rawQuery string) error {
	var lastErr error
	for {
		seq := v.nextSeq()

		var raw json.RawMessage
		err := v.c.Get(ctx, v.path, rawQuery, &raw)
		if err != nil {
			lastErr = err
		} else {
			v.applyIfLatest(seq, raw)
		}

		v.mu.Lock()
		if v.pending != nil {
			rawQuery, v.pending = *v.pending, nil
			v.mu.Unlock()
			continue
		}
		v.inFlight = false
		v.mu.Unlock()
		return lastErr
	}
}

func (v *ListView) nextSeq() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latestSeq++
	return v.latestSeq
}

// applyIfLatest installs data only when seq is still the newest issued
// sequence; anything older lost the race and is dropped.
func (v *ListView) applyIfLatest(seq uint64, data json.RawMessage) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.latestSeq || seq <= v.appliedSeq {
		return false
	}
	v.data = data
	v.appliedSeq = seq
	return true
}

// Snapshot returns the currently applied data and its sequence number.
func (v *ListView) Snapshot() (json.RawMessage, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data, v.appliedSeq
}

// Decode unmarshals the currently applied data into dst. It reports false
// when nothing has been applied yet.
func (v *ListView) Decode(dst any) (bool, error) {
	raw, seq := v.Snapshot()
	if seq == 0 {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}
