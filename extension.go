package axis

// Extension provides hooks into the engine's operation lifecycle: slot
// evaluation, collector insertion, cloning, and propagation waves.
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to an engine
	Init(e *Engine) error

	// Wrap intercepts an operation. next performs the operation; the
	// returned value is what the engine uses.
	Wrap(next func() Value, op *Operation) Value

	// OnFault is called when the engine records a fault
	OnFault(err error, e *Engine)

	// OnWave is called before each propagation wave with its batch
	OnWave(wave uint64, batch []SlotRef)

	// Dispose is called when the engine is disposed
	Dispose(e *Engine) error
}

// BaseExtension provides default implementations for Extension methods.
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(*Engine) error {
	return nil
}

func (e *BaseExtension) Wrap(next func() Value, op *Operation) Value {
	return next()
}

func (e *BaseExtension) OnFault(error, *Engine) {
}

func (e *BaseExtension) OnWave(uint64, []SlotRef) {
}

func (e *BaseExtension) Dispose(*Engine) error {
	return nil
}

// Operation describes what operation is happening.
type Operation struct {
	Kind   OperationKind
	Ref    SlotRef  // the slot involved, for evaluate/insert operations
	Obj    ObjectID // the object involved, for clone/insert operations
	Engine *Engine
}

// OperationKind represents the type of operation.
type OperationKind string

const (
	// OpEvaluate indicates a tracked slot evaluation
	OpEvaluate OperationKind = "evaluate"
	// OpInsert indicates a collector insertion
	OpInsert OperationKind = "insert"
	// OpClone indicates an object clone
	OpClone OperationKind = "clone"
)
