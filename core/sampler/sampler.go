package sampler

import (
	"errors"
	"fmt"
	"strings"
)

// WeightTotal is the fixed basis-point total every weight table must sum to.
const WeightTotal uint64 = 10000

var (
	ErrWeightsMustSumToTotal = errors.New("sampler: weights must sum to total")
	ErrNoWeights             = errors.New("sampler: no weights configured")
	ErrZeroWeight            = errors.New("sampler: zero-weight bucket")
	ErrInvalidClass          = errors.New("sampler: invalid class")
	ErrEmptyValue            = errors.New("sampler: empty bucket value")
)

// Bucket assigns a basis-point weight to a category value (a rarity tier).
type Bucket struct {
	Value  string
	Weight uint64
}

// KV is the narrow slice of the state manager the sampler needs.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Engine is the weighted fallback picker consulted only when a class has no
// finalized sequence. Sampling is a pure function of the configured table and
// caller-supplied entropy; repeats before exhaustion are possible, which is
// why the deterministic sequence path takes precedence.
type Engine struct {
	state KV
}

func NewEngine(state KV) *Engine {
	return &Engine{state: state}
}

var weightsPrefix = []byte("sampler/weights/")

func weightsKeyBytes(class string) []byte {
	buf := make([]byte, len(weightsPrefix)+len(class))
	copy(buf, weightsPrefix)
	copy(buf[len(weightsPrefix):], class)
	return buf
}

func normalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

// ConfigureWeights replaces the weight table for a class. The table must be
// non-empty, every bucket positive and named, and the weights must sum to
// exactly WeightTotal.
func (e *Engine) ConfigureWeights(class string, buckets []Bucket) error {
	class = normalizeClass(class)
	if class == "" {
		return ErrInvalidClass
	}
	if len(buckets) == 0 {
		return ErrNoWeights
	}
	var sum uint64
	stored := make([]Bucket, len(buckets))
	for i, bucket := range buckets {
		value := strings.ToLower(strings.TrimSpace(bucket.Value))
		if value == "" {
			return ErrEmptyValue
		}
		if bucket.Weight == 0 {
			return fmt.Errorf("%w: %s", ErrZeroWeight, value)
		}
		sum += bucket.Weight
		stored[i] = Bucket{Value: value, Weight: bucket.Weight}
	}
	if sum != WeightTotal {
		return fmt.Errorf("%w: got %d want %d", ErrWeightsMustSumToTotal, sum, WeightTotal)
	}
	return e.state.KVPut(weightsKeyBytes(class), stored)
}

// Weights returns the configured table for a class.
func (e *Engine) Weights(class string) ([]Bucket, error) {
	class = normalizeClass(class)
	if class == "" {
		return nil, ErrInvalidClass
	}
	var buckets []Bucket
	ok, err := e.state.KVGet(weightsKeyBytes(class), &buckets)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: class %s", ErrNoWeights, class)
	}
	return buckets, nil
}

// Sample reduces the caller-supplied entropy modulo WeightTotal and walks the
// cumulative sums, returning the first bucket value whose cumulative weight
// exceeds the reduced roll.
func (e *Engine) Sample(class string, randomness uint64) (string, error) {
	buckets, err := e.Weights(class)
	if err != nil {
		return "", err
	}
	roll := randomness % WeightTotal
	var cumulative uint64
	for _, bucket := range buckets {
		cumulative += bucket.Weight
		if roll < cumulative {
			return bucket.Value, nil
		}
	}
	// Unreachable while ConfigureWeights enforces the sum invariant.
	return "", fmt.Errorf("%w: cumulative walk fell through", ErrWeightsMustSumToTotal)
}
