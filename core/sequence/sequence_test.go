package sequence

import (
	"errors"
	"testing"

	"dropforge/core/catalog"
	"dropforge/core/state"
	"dropforge/storage"
)

func newTestEngine(t *testing.T) (*Engine, *catalog.Engine) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	cat := catalog.NewEngine(manager)
	return NewEngine(manager, cat), cat
}

func seedCatalog(t *testing.T, cat *catalog.Engine, group catalog.GroupKey, n int) {
	t.Helper()
	templates := make([]catalog.ItemTemplate, n)
	for i := range templates {
		templates[i] = catalog.ItemTemplate{ID: uint64(1000 + i)}
	}
	if _, err := cat.Append(group, templates); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
}

func buildSequence(t *testing.T, engine *Engine, group catalog.GroupKey, order []uint64) {
	t.Helper()
	if err := engine.Initialize(group, uint64(len(order))); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Append(group, order); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := engine.Finalize(group); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestReserveFollowsConfiguredOrder(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 5)
	buildSequence(t, engine, group, []uint64{2, 0, 4, 1, 3})

	res, err := engine.Reserve(group, 5)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Start != 0 || res.Count != 5 || res.Length != 5 {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	items, err := engine.Resolve(group, res.Start, res.Count)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantIDs := []uint64{1002, 1000, 1004, 1001, 1003}
	for i, item := range items {
		if item.ID != wantIDs[i] {
			t.Fatalf("offset %d: expected item %d, got %d", i, wantIDs[i], item.ID)
		}
	}

	// Wrap-around: the next two draws revisit the head of the order.
	res, err = engine.Reserve(group, 2)
	if err != nil {
		t.Fatalf("reserve wrap: %v", err)
	}
	if res.Start != 0 {
		t.Fatalf("expected wrapped start 0, got %d", res.Start)
	}
	items, err = engine.Resolve(group, res.Start, res.Count)
	if err != nil {
		t.Fatalf("resolve wrap: %v", err)
	}
	if items[0].ID != 1002 || items[1].ID != 1000 {
		t.Fatalf("unexpected wrap items: %d %d", items[0].ID, items[1].ID)
	}
}

func TestExhaustionBeforeRepeat(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "rare"}
	const length = 7
	seedCatalog(t, cat, group, length)
	order := []uint64{3, 1, 6, 0, 5, 2, 4}
	buildSequence(t, engine, group, order)

	seen := make(map[uint64]int)
	for i := 0; i < length; i++ {
		res, err := engine.Reserve(group, 1)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		items, err := engine.Resolve(group, res.Start, res.Count)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		seen[items[0].ID]++
	}
	if len(seen) != length {
		t.Fatalf("expected %d distinct items before any repeat, got %d", length, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("item %d resolved %d times within one pass", id, count)
		}
	}
}

func TestReservationDisjointness(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "common"}
	const length = 6
	seedCatalog(t, cat, group, length)
	buildSequence(t, engine, group, []uint64{0, 1, 2, 3, 4, 5})

	// Sizes total 2*length + 2: two full passes plus the first two of the next.
	sizes := []uint64{4, 1, 3, 2, 4}
	counts := make(map[uint64]int)
	for _, size := range sizes {
		res, err := engine.Reserve(group, size)
		if err != nil {
			t.Fatalf("reserve %d: %v", size, err)
		}
		items, err := engine.Resolve(group, res.Start, res.Count)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		for _, item := range items {
			counts[item.ID]++
		}
	}
	twice, thrice := 0, 0
	for _, count := range counts {
		switch count {
		case 2:
			twice++
		case 3:
			thrice++
		default:
			t.Fatalf("unexpected resolution count %d", count)
		}
	}
	if thrice != 2 || twice != length-2 {
		t.Fatalf("expected 2 items three times and %d twice, got %d/%d", length-2, thrice, twice)
	}
}

func TestAppendRejectsOutOfRangeIndex(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 5)
	if err := engine.Initialize(group, 5); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Append(group, []uint64{1, 10}); !errors.Is(err, catalog.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	cursor, ok, err := engine.Status(group)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !ok || len(cursor.Order) != 0 {
		t.Fatalf("failed append must not mutate the order, got %v", cursor.Order)
	}
}

func TestUnfinalizedSequenceNotConsumable(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 3)

	if _, err := engine.Reserve(group, 1); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized for missing cursor, got %v", err)
	}

	if err := engine.Initialize(group, 3); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Append(group, []uint64{0, 1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Non-empty but not finalized: still not consumable.
	if _, err := engine.Reserve(group, 1); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized before finalize, got %v", err)
	}
}

func TestFinalizeEmptySequence(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 3)
	if err := engine.Finalize(group); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("expected ErrEmptySequence without initialize, got %v", err)
	}
	if err := engine.Initialize(group, 3); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Finalize(group); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("expected ErrEmptySequence for empty order, got %v", err)
	}
}

func TestFinalizedSequenceClosedToAppend(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 4)
	buildSequence(t, engine, group, []uint64{0, 1, 2})

	if err := engine.Append(group, []uint64{3}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized for append after finalize, got %v", err)
	}
	cursor, ok, err := engine.Status(group)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !ok || len(cursor.Order) != 3 {
		t.Fatalf("rejected append must not grow the order, got %v", cursor.Order)
	}

	// A consumable cursor cannot be finalized again either; that would reset
	// a position only Reserve may advance.
	if _, err := engine.Reserve(group, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := engine.Finalize(group); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized for repeat finalize, got %v", err)
	}
	cursor, _, err = engine.Status(group)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if cursor.Position != 2 {
		t.Fatalf("rejected finalize must not reset the position, got %d", cursor.Position)
	}
}

func TestReinitializeReplacesSequence(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 4)
	buildSequence(t, engine, group, []uint64{0, 1, 2, 3})

	// Advance the cursor, then replace the whole sequence.
	if _, err := engine.Reserve(group, 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	buildSequence(t, engine, group, []uint64{3, 2})

	res, err := engine.Reserve(group, 1)
	if err != nil {
		t.Fatalf("reserve after replace: %v", err)
	}
	if res.Start != 0 || res.Length != 2 {
		t.Fatalf("replace must reset position and order, got %+v", res)
	}
	items, err := engine.Resolve(group, res.Start, res.Count)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if items[0].ID != 1003 {
		t.Fatalf("expected replaced order head 1003, got %d", items[0].ID)
	}
}

func TestInitializeValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	if err := engine.Initialize(group, 0); !errors.Is(err, ErrZeroExpected) {
		t.Fatalf("expected ErrZeroExpected, got %v", err)
	}
	if err := engine.Append(group, []uint64{0}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestResolveValidation(t *testing.T) {
	engine, cat := newTestEngine(t)
	group := catalog.GroupKey{Class: "relic", Rarity: "epic"}
	seedCatalog(t, cat, group, 3)
	buildSequence(t, engine, group, []uint64{0, 1, 2})

	if _, err := engine.Resolve(group, 3, 1); !errors.Is(err, catalog.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for stale start, got %v", err)
	}
	if _, err := engine.Resolve(group, 0, 0); !errors.Is(err, ErrZeroCount) {
		t.Fatalf("expected ErrZeroCount, got %v", err)
	}
}
