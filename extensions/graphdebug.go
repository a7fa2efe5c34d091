package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	axis "github.com/axis-lang/axis-go"
	"github.com/m1gwings/treedrawer/tree"
)

// GraphDebugExtension renders the dependency graph when the engine records
// a fault.
//
// Usage:
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
//
// The rendered graph marks slots that evaluated at least once, so a
// divergence report shows which parts of the graph were live.
type GraphDebugExtension struct {
	axis.BaseExtension

	mu        sync.Mutex
	evaluated map[axis.SlotRef]bool
	logger    *slog.Logger
}

// NewGraphDebugExtension creates a graph debug extension logging through
// the given slog handler.
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: axis.NewBaseExtension("graph-debug"),
		evaluated:     make(map[axis.SlotRef]bool),
		logger:        slog.New(logHandler),
	}
}

// Wrap tracks which slots have evaluated.
func (e *GraphDebugExtension) Wrap(next func() axis.Value, op *axis.Operation) axis.Value {
	v := next()
	if op.Kind == axis.OpEvaluate {
		e.mu.Lock()
		e.evaluated[op.Ref] = true
		e.mu.Unlock()
	}
	return v
}

// OnFault logs the dependency graph when a fault is recorded.
func (e *GraphDebugExtension) OnFault(err error, eng *axis.Engine) {
	e.logger.Error("engine fault",
		"error", err.Error(),
		"dependency_graph", e.renderGraph(eng),
	)
}

// renderGraph draws each slot with its dependents as a subtree.
func (e *GraphDebugExtension) renderGraph(eng *axis.Engine) string {
	graph := eng.ExportDependencyGraph()
	if len(graph) == 0 {
		return "(empty - no dependencies tracked)"
	}

	parents := make([]axis.SlotRef, 0, len(graph))
	for ref := range graph {
		parents = append(parents, ref)
	}
	sort.Slice(parents, func(i, j int) bool {
		if parents[i].Obj != parents[j].Obj {
			return parents[i].Obj < parents[j].Obj
		}
		return parents[i].Key < parents[j].Key
	})

	t := tree.NewTree(tree.NodeString("slots"))
	for i, parent := range parents {
		t.AddChild(tree.NodeString(e.slotLabel(parent)))
		node, err := t.Child(i)
		if err != nil {
			continue
		}
		for _, child := range graph[parent] {
			node.AddChild(tree.NodeString(e.slotLabel(child)))
		}
	}
	return "\n" + t.String()
}

func (e *GraphDebugExtension) slotLabel(ref axis.SlotRef) string {
	label := fmt.Sprintf("obj%d.%s", ref.Obj, ref.Key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evaluated[ref] {
		return label + " *"
	}
	return label
}

// SilentHandler is a slog.Handler that discards all log output.
// Useful for testing when you don't want log output.
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler.
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}
