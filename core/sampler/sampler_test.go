package sampler

import (
	"errors"
	"testing"

	"dropforge/core/state"
	"dropforge/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewEngine(state.NewManager(db))
}

func TestConfigureWeightsSumInvariant(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.ConfigureWeights("relic", []Bucket{
		{Value: "common", Weight: 6000},
		{Value: "rare", Weight: 3000},
	})
	if !errors.Is(err, ErrWeightsMustSumToTotal) {
		t.Fatalf("expected ErrWeightsMustSumToTotal, got %v", err)
	}

	err = engine.ConfigureWeights("relic", []Bucket{
		{Value: "common", Weight: 6000},
		{Value: "rare", Weight: 3000},
		{Value: "epic", Weight: 1000},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	buckets, err := engine.Weights("relic")
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	var sum uint64
	for _, bucket := range buckets {
		sum += bucket.Weight
	}
	if sum != WeightTotal {
		t.Fatalf("stored table must sum to %d, got %d", WeightTotal, sum)
	}
}

func TestConfigureWeightsRejectsBadBuckets(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.ConfigureWeights("relic", nil); !errors.Is(err, ErrNoWeights) {
		t.Fatalf("expected ErrNoWeights, got %v", err)
	}
	err := engine.ConfigureWeights("relic", []Bucket{{Value: "common", Weight: 0}, {Value: "rare", Weight: 10000}})
	if !errors.Is(err, ErrZeroWeight) {
		t.Fatalf("expected ErrZeroWeight, got %v", err)
	}
	err = engine.ConfigureWeights("relic", []Bucket{{Value: " ", Weight: 10000}})
	if !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected ErrEmptyValue, got %v", err)
	}
}

func TestSampleBucketBoundaries(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.ConfigureWeights("relic", []Bucket{
		{Value: "common", Weight: 6000},
		{Value: "rare", Weight: 3000},
		{Value: "epic", Weight: 1000},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	cases := []struct {
		roll uint64
		want string
	}{
		{0, "common"},
		{5999, "common"},
		{6000, "rare"},
		{8999, "rare"},
		{9000, "epic"},
		{9999, "epic"},
		{10000, "common"}, // wraps modulo the total
		{10000 + 9000, "epic"},
	}
	for _, tc := range cases {
		got, err := engine.Sample("relic", tc.roll)
		if err != nil {
			t.Fatalf("sample %d: %v", tc.roll, err)
		}
		if got != tc.want {
			t.Fatalf("roll %d: expected %q, got %q", tc.roll, tc.want, got)
		}
	}
}

func TestSampleUnconfiguredClass(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Sample("unknown", 42); !errors.Is(err, ErrNoWeights) {
		t.Fatalf("expected ErrNoWeights, got %v", err)
	}
}
