package axis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPropagation_ChainReactsToInput(t *testing.T) {
	eng := NewEngine()
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "base", Expr: &Lit{Val: Number(1)}},
		{Name: "doubled", Expr: &Binary{Op: OpMul, L: &Ident{Name: "base"}, R: &Lit{Val: Number(2)}}},
		{Name: "plusTen", Expr: &Binary{Op: OpAdd, L: &Ident{Name: "doubled"}, R: &Lit{Val: Number(10)}}},
	}})

	v, err := eng.Get(ctx, obj, "plusTen")
	if err != nil {
		t.Fatalf("Get plusTen: %v", err)
	}
	if !v.Equal(Number(12)) {
		t.Errorf("plusTen = %s, expected 12", v)
	}

	if err := eng.Set(ctx, obj, "base", Number(5)); err != nil {
		t.Fatalf("Set base: %v", err)
	}
	v, _ = eng.Get(ctx, obj, "plusTen")
	if !v.Equal(Number(20)) {
		t.Errorf("plusTen after update = %s, expected 20", v)
	}

	stats := eng.Stats()
	if stats.Evaluations == 0 || stats.Commits == 0 {
		t.Errorf("Stats should count work, got %+v", stats)
	}
}

func TestPropagation_UnchangedValueStopsTheWave(t *testing.T) {
	eng := NewEngine()
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "in", Expr: &Lit{Val: Number(3)}},
		{Name: "clamped", Expr: &Binary{Op: OpMin, L: &Ident{Name: "in"}, R: &Lit{Val: Number(10)}}},
		{Name: "out", Expr: &Binary{Op: OpAdd, L: &Ident{Name: "clamped"}, R: &Lit{Val: Number(1)}}},
	}})

	if _, err := eng.Get(ctx, obj, "out"); err != nil {
		t.Fatalf("Get out: %v", err)
	}
	before := eng.Stats().Evaluations

	// 3 -> 30 pushes the clamp to 10; 30 -> 40 leaves it at 10, so out
	// must not re-evaluate for the second change.
	if err := eng.Set(ctx, obj, "in", Number(30)); err != nil {
		t.Fatalf("Set in: %v", err)
	}
	mid := eng.Stats().Evaluations
	if err := eng.Set(ctx, obj, "in", Number(40)); err != nil {
		t.Fatalf("Set in: %v", err)
	}
	after := eng.Stats().Evaluations

	if mid == before {
		t.Error("First input change should trigger evaluations")
	}
	// Second change: in and clamped re-evaluate, out must not.
	if after-mid > 2 {
		t.Errorf("Expected at most 2 evaluations after a no-op change, got %d", after-mid)
	}
	v, _ := eng.Get(ctx, obj, "out")
	if !v.Equal(Number(11)) {
		t.Errorf("out = %s, expected 11", v)
	}
}

func TestPropagation_ConvergentCycle(t *testing.T) {
	// x and y feed each other through a clamp, so the feedback settles.
	eng := NewEngine()
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Binary{
			Op: OpMin,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "y"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(10)},
		}},
		{Name: "y", Expr: &Binary{
			Op: OpMin,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "x"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(10)},
		}},
	}})

	x, err := eng.Get(ctx, obj, "x")
	if err != nil {
		t.Fatalf("Get x: %v", err)
	}
	y, _ := eng.Get(ctx, obj, "y")
	if !x.Equal(Number(10)) || !y.Equal(Number(10)) {
		t.Errorf("Fixpoint = (%s, %s), expected (10, 10)", x, y)
	}
	if len(eng.Faults()) != 0 {
		t.Errorf("Convergent cycle must not fault, got %v", eng.Faults())
	}
}

func TestPropagation_ShortestPathConverges(t *testing.T) {
	// Distance slots relax over a cyclic graph. min treats undefined as
	// identity, so unreachable nodes stay undefined.
	eng := NewEngine()
	defer eng.Dispose()
	ctx := context.Background()

	edges := map[string][]string{
		"a": {"b", "c"},
		"b": {"a", "c"},
		"c": {"a", "b", "d"},
		"d": {"c", "e"},
		"e": {"d"},
		"f": {}, // disconnected
	}
	dist := func(n string) string { return "d_" + n }

	var slots []SlotDef
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		if n == "a" {
			slots = append(slots, SlotDef{Name: dist(n), Expr: &Lit{Val: Number(0)}})
			continue
		}
		var expr Expr
		for _, nb := range edges[n] {
			hop := &Binary{Op: OpAdd, L: &Ident{Name: dist(nb)}, R: &Lit{Val: Number(1)}}
			if expr == nil {
				expr = hop
			} else {
				expr = &Binary{Op: OpMin, L: expr, R: hop}
			}
		}
		if expr == nil {
			expr = &Lit{Val: Undefined()}
		}
		slots = append(slots, SlotDef{Name: dist(n), Expr: expr})
	}
	graph := eng.Construct(&ObjectLit{Slots: slots})

	want := map[string]Value{
		"a": Number(0), "b": Number(1), "c": Number(1),
		"d": Number(2), "e": Number(3), "f": Undefined(),
	}
	for n, expect := range want {
		v, err := eng.Get(ctx, graph, dist(n))
		if err != nil {
			t.Fatalf("Get %s: %v", dist(n), err)
		}
		if !v.Equal(expect) {
			t.Errorf("dist(%s) = %s, expected %s", n, v, expect)
		}
	}
	if len(eng.Faults()) != 0 {
		t.Errorf("Shortest path must converge without faults, got %v", eng.Faults())
	}
}

func TestPropagation_OrderIndependence(t *testing.T) {
	// The same inputs applied in different orders end in the same state.
	build := func() (*Engine, Value) {
		eng := NewEngine()
		obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
			{Name: "sum", Expr: &Binary{Op: OpAdd, L: &Ident{Name: "p"}, R: &Ident{Name: "q"}}},
			{Name: "prod", Expr: &Binary{Op: OpMul, L: &Ident{Name: "p"}, R: &Ident{Name: "q"}}},
			{Name: "mix", Expr: &Binary{Op: OpAdd, L: &Ident{Name: "sum"}, R: &Ident{Name: "prod"}}},
		}})
		return eng, obj
	}
	ctx := context.Background()

	orders := [][]struct {
		key string
		val float64
	}{
		{{"p", 3}, {"q", 4}},
		{{"q", 4}, {"p", 3}},
	}

	var results []Value
	for _, order := range orders {
		eng, obj := build()
		for _, in := range order {
			if err := eng.Set(ctx, obj, in.key, Number(in.val)); err != nil {
				t.Fatalf("Set %s: %v", in.key, err)
			}
		}
		v, err := eng.Get(ctx, obj, "mix")
		if err != nil {
			t.Fatalf("Get mix: %v", err)
		}
		results = append(results, v)
		eng.Dispose()
	}
	if !results[0].Equal(results[1]) {
		t.Errorf("Input order changed the result: %s vs %s", results[0], results[1])
	}
	if !results[0].Equal(Number(19)) {
		t.Errorf("mix = %s, expected 19", results[0])
	}
}

func TestPropagation_ParallelismDoesNotChangeValues(t *testing.T) {
	run := func(parallelism int) map[string]Value {
		eng := NewEngine(WithParallelism(parallelism))
		defer eng.Dispose()
		ctx := context.Background()

		var slots []SlotDef
		// A wide fan: forty slots over two inputs, then a spine that
		// chains them so waves have both breadth and depth.
		for i := 0; i < 40; i++ {
			slots = append(slots, SlotDef{
				Name: fmt.Sprintf("n%d", i),
				Expr: &Binary{
					Op: OpAdd,
					L:  &Ident{Name: "left"},
					R:  &Binary{Op: OpMul, L: &Ident{Name: "right"}, R: &Lit{Val: Number(float64(i))}},
				},
			})
		}
		slots = append(slots,
			SlotDef{Name: "left", Expr: &Lit{Val: Number(2)}},
			SlotDef{Name: "right", Expr: &Lit{Val: Number(3)}},
			SlotDef{Name: "spine", Expr: &Binary{Op: OpAdd, L: &Ident{Name: "n7"}, R: &Ident{Name: "n31"}}},
		)
		obj := eng.Construct(&ObjectLit{Slots: slots})

		// Materialize everything first so the input change dirties the
		// whole fan and the wave actually runs wide.
		for i := 0; i < 40; i++ {
			if _, err := eng.Get(ctx, obj, fmt.Sprintf("n%d", i)); err != nil {
				t.Fatalf("Get n%d: %v", i, err)
			}
		}
		if _, err := eng.Get(ctx, obj, "spine"); err != nil {
			t.Fatalf("Get spine: %v", err)
		}
		if err := eng.Set(ctx, obj, "left", Number(5)); err != nil {
			t.Fatalf("Set left: %v", err)
		}

		out := make(map[string]Value)
		for i := 0; i < 40; i++ {
			key := fmt.Sprintf("n%d", i)
			out[key], _ = eng.Get(ctx, obj, key)
		}
		out["spine"], _ = eng.Get(ctx, obj, "spine")
		return out
	}

	serial := run(1)
	parallel := run(8)
	for key, v := range serial {
		if !v.Equal(parallel[key]) {
			t.Errorf("%s differs across parallelism: %s vs %s", key, v, parallel[key])
		}
	}
}

func TestDivergence_WaveBudget(t *testing.T) {
	// x and y push each other upward without bound; the group is
	// classified instead of looping forever.
	eng := NewEngine(WithWaveBudget(10))
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "y"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
		{Name: "y", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "x"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
		{Name: "calm", Expr: &Lit{Val: Number(7)}},
	}})

	v, err := eng.Get(ctx, obj, "x")
	if err == nil {
		t.Fatal("Expected a divergence error")
	}
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("Expected DivergenceError, got %T: %v", err, err)
	}
	if len(div.Group) == 0 {
		t.Error("Divergence should name the cyclic group")
	}
	if !v.IsUndefined() {
		t.Errorf("Diverged slot reads %s, expected undefined", v)
	}

	// The fault is recorded and local: unrelated slots still evaluate.
	found := false
	for _, f := range eng.Faults() {
		if errors.As(f, &div) {
			found = true
		}
	}
	if !found {
		t.Error("Divergence fault should be recorded on the engine")
	}
	calm, err := eng.Get(ctx, obj, "calm")
	if err != nil {
		t.Fatalf("Get calm after divergence: %v", err)
	}
	if !calm.Equal(Number(7)) {
		t.Errorf("calm = %s, expected 7", calm)
	}
}

func TestDivergence_DependentsOfCondemnedGroupSettle(t *testing.T) {
	eng := NewEngine(WithWaveBudget(10))
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "y"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
		{Name: "y", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "x"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
		{Name: "watcher", Expr: &Cond{
			If:   &Ident{Name: "x"},
			Then: &Lit{Val: String("live")},
			Else: &Lit{Val: String("down")},
		}},
	}})

	if _, err := eng.Get(ctx, obj, "x"); err == nil {
		t.Fatal("Expected divergence")
	}

	// The watcher reads the condemned slot as undefined and settles on
	// its own, with no further error.
	v, err := eng.Get(ctx, obj, "watcher")
	if err != nil {
		t.Fatalf("Get watcher: %v", err)
	}
	if !v.Equal(String("down")) {
		t.Errorf("watcher = %s, expected \"down\"", v)
	}
}

func TestDivergence_MagnitudeBound(t *testing.T) {
	eng := NewEngine(WithMagnitudeBound(1000))
	defer eng.Dispose()
	ctx := context.Background()

	// Self-feedback that doubles every wave once seeded.
	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpMul, L: &Ident{Name: "x"}, R: &Lit{Val: Number(2)}},
			R:  &Lit{Val: Number(1)},
		}},
	}})

	_, err := eng.Get(ctx, obj, "x")
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("Expected DivergenceError, got %v", err)
	}
	if div.Reason == "" {
		t.Error("Divergence should carry a reason")
	}
	v, _ := eng.Get(ctx, obj, "x")
	if !v.IsUndefined() {
		t.Errorf("Diverged slot reads %s, expected undefined", v)
	}
}

func TestStabilize_WallClockAbort(t *testing.T) {
	eng := NewEngine(WithWallClock(time.Nanosecond), WithWaveBudget(1_000_000))
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "y"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
		{Name: "y", Expr: &Binary{
			Op: OpMax,
			L:  &Binary{Op: OpAdd, L: &Ident{Name: "x"}, R: &Lit{Val: Number(1)}},
			R:  &Lit{Val: Number(0)},
		}},
	}})

	_, err := eng.Get(ctx, obj, "x")
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("Expected DivergenceError from wall-clock abort, got %v", err)
	}
}

func TestStabilize_ContextCancellation(t *testing.T) {
	eng := NewEngine()
	defer eng.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "v", Expr: &Lit{Val: Number(1)}},
	}})
	_, err := eng.Get(ctx, obj, "v")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestHandle_Lifecycle(t *testing.T) {
	eng := NewEngine()
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "v", Expr: &Lit{Val: Number(1)}},
	}})
	h := eng.Accessor(obj, "v")

	if _, ok := h.Peek(); ok {
		t.Error("Peek before materialization should report no value")
	}
	v, err := h.Get(ctx)
	if err != nil {
		t.Fatalf("Handle Get: %v", err)
	}
	if !v.Equal(Number(1)) {
		t.Errorf("Handle Get = %s, expected 1", v)
	}
	if cached, ok := h.Peek(); !ok || !cached.Equal(Number(1)) {
		t.Errorf("Peek = %s/%v, expected 1/true", cached, ok)
	}

	if err := h.Set(ctx, Number(9)); err != nil {
		t.Fatalf("Handle Set: %v", err)
	}
	if cached, _ := h.Peek(); !cached.Equal(Number(9)) {
		t.Errorf("Peek after Set = %s, expected 9", cached)
	}

	h.Invalidate()
	if err := eng.Stabilize(ctx); err != nil {
		t.Fatalf("Stabilize after Invalidate: %v", err)
	}
	if cached, _ := h.Peek(); !cached.Equal(Number(9)) {
		t.Errorf("Peek after re-evaluation = %s, expected 9", cached)
	}
	if h.Ref() != (SlotRef{Obj: obj.Object(), Key: "v"}) {
		t.Errorf("Ref = %v, expected the handle's slot", h.Ref())
	}
}

func TestPropagator_MagnitudeBoundSparesAcyclicSlots(t *testing.T) {
	eng := NewEngine(WithMagnitudeBound(1000))
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: &Lit{Val: Number(1)}},
		{Name: "doubled", Expr: &Binary{
			Op: OpMul,
			L:  &Ident{Name: "x"},
			R:  &Lit{Val: Number(2)},
		}},
	}})
	if _, err := eng.Get(ctx, obj, "doubled"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// A slot outside any cycle keeps a value beyond the bound; the bound
	// classifies feedback growth, not large inputs.
	if err := eng.Set(ctx, obj, "x", Number(5000)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := eng.Get(ctx, obj, "x"); !v.Equal(Number(5000)) {
		t.Errorf("x = %s, expected 5000", v)
	}
	if v, _ := eng.Get(ctx, obj, "doubled"); !v.Equal(Number(10000)) {
		t.Errorf("doubled = %s, expected 10000", v)
	}
	if faults := eng.Faults(); len(faults) != 0 {
		t.Errorf("Expected no faults, got %v", faults)
	}
}

func TestPropagator_SetRevivesCondemnedSlot(t *testing.T) {
	eng := NewEngine(WithWaveBudget(5))
	defer eng.Dispose()
	ctx := context.Background()

	grow := func(other string) Expr {
		return &Binary{
			Op: OpMax,
			L: &Binary{
				Op: OpAdd,
				L:  &Ident{Name: other},
				R:  &Lit{Val: Number(1)},
			},
			R: &Lit{Val: Number(0)},
		}
	}
	obj := eng.Construct(&ObjectLit{Slots: []SlotDef{
		{Name: "x", Expr: grow("y")},
		{Name: "y", Expr: grow("x")},
	}})

	if _, err := eng.Get(ctx, obj, "x"); err == nil {
		t.Fatal("Expected the feedback pair to diverge")
	}
	if v, _ := eng.Get(ctx, obj, "x"); !v.IsUndefined() {
		t.Fatalf("Condemned x = %s, expected undefined", v)
	}

	// New external input replaces the definition; the slot comes back.
	if err := eng.Set(ctx, obj, "x", Number(5)); err != nil {
		t.Fatalf("Set after divergence: %v", err)
	}
	if v, _ := eng.Get(ctx, obj, "x"); !v.Equal(Number(5)) {
		t.Errorf("Revived x = %s, expected 5", v)
	}
	if err := eng.Set(ctx, obj, "y", Number(7)); err != nil {
		t.Fatalf("Set y: %v", err)
	}
	if v, _ := eng.Get(ctx, obj, "y"); !v.Equal(Number(7)) {
		t.Errorf("Revived y = %s, expected 7", v)
	}
}
