package extensions

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	axis "github.com/axis-lang/axis-go"
)

// divergentPair builds two slots that feed each other a growing number.
func divergentPair() *axis.ObjectLit {
	grow := func(other string) axis.Expr {
		return &axis.Binary{
			Op: axis.OpMax,
			L: &axis.Binary{
				Op: axis.OpAdd,
				L:  &axis.Ident{Name: other},
				R:  &axis.Lit{Val: axis.Number(1)},
			},
			R: &axis.Lit{Val: axis.Number(0)},
		}
	}
	return &axis.ObjectLit{Slots: []axis.SlotDef{
		{Name: "x", Expr: grow("y")},
		{Name: "y", Expr: grow("x")},
	}}
}

func TestGraphDebugExtension_RendersOnFault(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	eng := axis.NewEngine(
		axis.WithExtension(ext),
		axis.WithWaveBudget(5),
	)
	defer eng.Dispose()

	obj := eng.Construct(divergentPair())
	if _, err := eng.Get(context.Background(), obj, "x"); err == nil {
		t.Fatal("Expected a divergence fault")
	}

	rendered := ext.renderGraph(eng)
	if !strings.Contains(rendered, "obj") {
		t.Errorf("Rendered graph missing slot labels: %q", rendered)
	}
	if !strings.Contains(rendered, "*") {
		t.Errorf("Rendered graph should mark evaluated slots: %q", rendered)
	}
}

func TestGraphDebugExtension_EmptyGraph(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	eng := axis.NewEngine(axis.WithExtension(ext))
	defer eng.Dispose()

	rendered := ext.renderGraph(eng)
	if !strings.Contains(rendered, "empty") {
		t.Errorf("Empty graph should say so, got %q", rendered)
	}
}

func TestLoggingExtension_LogsOperations(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	ext := NewLoggingExtension(handler, slog.LevelDebug)
	eng := axis.NewEngine(axis.WithExtension(ext))
	defer eng.Dispose()
	ctx := context.Background()

	obj := eng.Construct(&axis.ObjectLit{Slots: []axis.SlotDef{
		{Name: "a", Expr: &axis.Lit{Val: axis.Number(1)}},
		{Name: "b", Expr: &axis.Binary{
			Op: axis.OpAdd,
			L:  &axis.Ident{Name: "a"},
			R:  &axis.Lit{Val: axis.Number(1)},
		}},
	}})
	if _, err := eng.Get(ctx, obj, "b"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := eng.Set(ctx, obj, "a", axis.Number(5)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "operation") {
		t.Errorf("Expected operation logs, got %q", out)
	}
	if !strings.Contains(out, "kind=evaluate") {
		t.Errorf("Expected evaluate operations in %q", out)
	}
	if !strings.Contains(out, "wave") {
		t.Errorf("Expected wave logs in %q", out)
	}
}

func TestLoggingExtension_LogsFaults(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	ext := NewLoggingExtension(handler, slog.LevelWarn)
	eng := axis.NewEngine(
		axis.WithExtension(ext),
		axis.WithWaveBudget(5),
	)
	defer eng.Dispose()

	obj := eng.Construct(divergentPair())
	if _, err := eng.Get(context.Background(), obj, "x"); err == nil {
		t.Fatal("Expected a divergence fault")
	}
	if !strings.Contains(buf.String(), "fault recorded") {
		t.Errorf("Expected a fault log, got %q", buf.String())
	}
}

func TestSilentHandler(t *testing.T) {
	h := NewSilentHandler()
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("SilentHandler must report disabled at every level")
	}
	if h.WithAttrs(nil) != h || h.WithGroup("g") != h {
		t.Error("SilentHandler must return itself from WithAttrs and WithGroup")
	}
}

func TestToJournalKey(t *testing.T) {
	cases := map[string]string{
		"error":        "ERROR",
		"some-key":     "SOME_KEY",
		"dotted.name":  "DOTTED_NAME",
		"already_OK_9": "ALREADY_OK_9",
	}
	for in, want := range cases {
		if got := toJournalKey(in); got != want {
			t.Errorf("toJournalKey(%q) = %q, expected %q", in, got, want)
		}
	}
}
