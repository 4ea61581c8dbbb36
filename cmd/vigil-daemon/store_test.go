// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/schema"
)

var storeTestEpoch = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	return openStoreAt(t, filepath.Join(t.TempDir(), "history_test.db"))
}

func openStoreAt(t *testing.T, path string) (*Store, *clock.FakeClock) {
	t.Helper()

	fakeClock := clock.Fake(storeTestEpoch)
	store, err := OpenStore(StoreConfig{
		Path:     path,
		PoolSize: 2,
		Clock:    fakeClock,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})
	return store, fakeClock
}

func testSample(workspaceID string, at time.Time, tokens uint64) schema.UsageSample {
	return schema.UsageSample{
		WorkspaceID:     workspaceID,
		Timestamp:       at.UnixNano(),
		CurrentTokens:   tokens,
		WindowTokens:    tokens * 3,
		ContextPercent:  float64(tokens) / 2000,
		PlanPercent:     float64(tokens) / 5000,
		BurnRatePerHour: 1200,
	}
}

func mustRecord(t *testing.T, store *Store, samples ...schema.UsageSample) {
	t.Helper()
	for _, sample := range samples {
		if err := store.RecordSample(context.Background(), sample); err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}
}

func TestRecordAndQuerySamples(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	mustRecord(t, store,
		testSample("alpha", storeTestEpoch, 100),
		testSample("beta", storeTestEpoch.Add(time.Minute), 200),
		testSample("alpha", storeTestEpoch.Add(2*time.Minute), 300),
	)

	all, err := store.Samples(ctx, "", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples (all): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d samples, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp < all[i-1].Timestamp {
			t.Fatalf("samples out of order at index %d", i)
		}
	}

	alpha, err := store.Samples(ctx, "alpha", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples (alpha): %v", err)
	}
	if len(alpha) != 2 {
		t.Fatalf("got %d alpha samples, want 2", len(alpha))
	}
	for _, sample := range alpha {
		if sample.WorkspaceID != "alpha" {
			t.Errorf("workspace filter leaked sample for %q", sample.WorkspaceID)
		}
	}

	got := alpha[0]
	want := testSample("alpha", storeTestEpoch, 100)
	if got != want {
		t.Errorf("sample roundtrip = %+v, want %+v", got, want)
	}
}

func TestSamplesAcrossPartitions(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	old := storeTestEpoch.Add(-3 * 24 * time.Hour)
	mustRecord(t, store,
		testSample("alpha", old, 50),
		testSample("alpha", storeTestEpoch, 150),
	)

	if partitions := store.activePartitions(); len(partitions) != 2 {
		t.Fatalf("got %d partitions, want 2", len(partitions))
	}

	samples, err := store.Samples(ctx, "alpha", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples across partitions, want 2", len(samples))
	}
	if samples[0].Timestamp != old.UnixNano() {
		t.Errorf("first sample timestamp = %d, want the older partition's %d",
			samples[0].Timestamp, old.UnixNano())
	}
	if samples[1].CurrentTokens != 150 {
		t.Errorf("second sample tokens = %d, want 150", samples[1].CurrentTokens)
	}
}

func TestSamplesTimeRange(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	mustRecord(t, store,
		testSample("alpha", storeTestEpoch, 100),
		testSample("alpha", storeTestEpoch.Add(time.Hour), 200),
		testSample("alpha", storeTestEpoch.Add(2*time.Hour), 300),
	)

	from := storeTestEpoch.Add(30 * time.Minute).UnixNano()
	to := storeTestEpoch.Add(90 * time.Minute).UnixNano()
	samples, err := store.Samples(ctx, "alpha", from, to, 0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples in range, want 1", len(samples))
	}
	if samples[0].CurrentTokens != 200 {
		t.Errorf("in-range sample tokens = %d, want 200", samples[0].CurrentTokens)
	}

	// Bounds are inclusive.
	exact, err := store.Samples(ctx, "alpha",
		storeTestEpoch.UnixNano(), storeTestEpoch.UnixNano(), 0)
	if err != nil {
		t.Fatalf("Samples (exact bound): %v", err)
	}
	if len(exact) != 1 {
		t.Fatalf("got %d samples at exact bound, want 1", len(exact))
	}
}

func TestSamplesLimit(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		mustRecord(t, store,
			testSample("alpha", storeTestEpoch.Add(time.Duration(i)*time.Minute), uint64(100*(i+1))))
	}

	samples, err := store.Samples(ctx, "alpha", 0, 0, 2)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples with limit 2, want 2", len(samples))
	}
	// The limit keeps the oldest rows: ascending order feeds charting
	// from the left edge.
	if samples[0].CurrentTokens != 100 || samples[1].CurrentTokens != 200 {
		t.Errorf("limited samples = %d, %d tokens, want 100, 200",
			samples[0].CurrentTokens, samples[1].CurrentTokens)
	}
}

func TestSamplesEmptyStore(t *testing.T) {
	store, _ := openTestStore(t)

	samples, err := store.Samples(context.Background(), "alpha", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("got %d samples from an empty store, want 0", len(samples))
	}
}

func TestRetention(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	mustRecord(t, store,
		testSample("alpha", storeTestEpoch, 100),
		testSample("alpha", storeTestEpoch.Add(-10*24*time.Hour), 50),
	)

	if partitions := store.activePartitions(); len(partitions) != 2 {
		t.Fatalf("got %d partitions before retention, want 2", len(partitions))
	}

	// Seven-day retention plus the 24h partition slack keeps anything
	// newer than 8 days; the 10-day-old partition goes.
	if err := store.RunRetention(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("RunRetention: %v", err)
	}

	partitions := store.activePartitions()
	if len(partitions) != 1 {
		t.Fatalf("got %d partitions after retention, want 1", len(partitions))
	}
	if partitions[0] != storeTestEpoch.Format("20060102") {
		t.Errorf("surviving partition = %s, want %s",
			partitions[0], storeTestEpoch.Format("20060102"))
	}

	samples, err := store.Samples(ctx, "alpha", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples after retention: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples after retention, want 1", len(samples))
	}
	if samples[0].CurrentTokens != 100 {
		t.Errorf("surviving sample tokens = %d, want 100", samples[0].CurrentTokens)
	}
}

func TestRetentionKeepsYoungPartitions(t *testing.T) {
	store, clk := openTestStore(t)
	ctx := context.Background()

	mustRecord(t, store, testSample("alpha", clk.Now(), 100))

	if err := store.RunRetention(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if partitions := store.activePartitions(); len(partitions) != 1 {
		t.Fatalf("retention dropped a young partition, %d left", len(partitions))
	}

	// Advance past the retention horizon and sweep again.
	clk.Advance(9 * 24 * time.Hour)
	if err := store.RunRetention(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("RunRetention (aged): %v", err)
	}
	if partitions := store.activePartitions(); len(partitions) != 0 {
		t.Fatalf("got %d partitions after aging, want 0", len(partitions))
	}
}

func TestStoreStats(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	empty, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats (empty): %v", err)
	}
	if empty.PartitionCount != 0 || empty.SampleCount != 0 {
		t.Errorf("empty stats = %+v, want zero partitions and samples", empty)
	}
	if empty.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0 for an initialized database", empty.SizeBytes)
	}

	old := storeTestEpoch.Add(-2 * 24 * time.Hour)
	mustRecord(t, store,
		testSample("alpha", old, 50),
		testSample("alpha", storeTestEpoch, 100),
		testSample("beta", storeTestEpoch.Add(time.Minute), 200),
	)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PartitionCount != 2 {
		t.Errorf("PartitionCount = %d, want 2", stats.PartitionCount)
	}
	if stats.SampleCount != 3 {
		t.Errorf("SampleCount = %d, want 3", stats.SampleCount)
	}
	if stats.OldestPartition != old.Format("20060102") {
		t.Errorf("OldestPartition = %s, want %s", stats.OldestPartition, old.Format("20060102"))
	}
	if stats.NewestPartition != storeTestEpoch.Format("20060102") {
		t.Errorf("NewestPartition = %s, want %s", stats.NewestPartition, storeTestEpoch.Format("20060102"))
	}
}

func TestPartitionDiscoveryOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history_test.db")

	store, _ := openStoreAt(t, path)
	mustRecord(t, store,
		testSample("alpha", storeTestEpoch.Add(-24*time.Hour), 50),
		testSample("alpha", storeTestEpoch, 100),
	)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenStore(StoreConfig{
		Path:   path,
		Clock:  clock.Fake(storeTestEpoch),
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("OpenStore (reopen): %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if partitions := reopened.activePartitions(); len(partitions) != 2 {
		t.Fatalf("rediscovered %d partitions, want 2", len(partitions))
	}

	samples, err := reopened.Samples(context.Background(), "alpha", 0, 0, 0)
	if err != nil {
		t.Fatalf("Samples after reopen: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples after reopen, want 2", len(samples))
	}
}

func TestPartitionsInRange(t *testing.T) {
	store, _ := openTestStore(t)

	day := func(offset int) time.Time {
		return storeTestEpoch.Add(time.Duration(offset) * 24 * time.Hour)
	}
	mustRecord(t, store,
		testSample("alpha", day(-2), 10),
		testSample("alpha", day(-1), 20),
		testSample("alpha", day(0), 30),
	)

	// A range covering only the middle day touches one partition.
	from := day(-1).Truncate(24 * time.Hour).UnixNano()
	to := day(-1).UnixNano()
	if got := store.partitionsInRange(from, to); len(got) != 1 {
		t.Fatalf("partitionsInRange = %v, want exactly the middle day", got)
	}

	// Open bounds cover everything.
	if got := store.partitionsInRange(0, 0); len(got) != 3 {
		t.Fatalf("open-range partitions = %v, want all 3", got)
	}
}
