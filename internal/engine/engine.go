// Package engine assembles every other package in this module into one
// host-facing entry point: an Engine owns its own heap, shape table, global
// scope, interpreter, and event loop, with no process-global state anywhere
// in the stack beneath it; two Engines in the same process never share a
// nursery, an intern table's identity, or a timer queue.
//
// The execution core is a library, not a singleton runtime: nothing here
// reaches for a process-global VM. Construction follows the
// functional-options Config pattern used elsewhere for building a
// long-lived object graph.
package engine

import (
	"context"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"corevm/internal/ast"
	"corevm/internal/bytecode"
	"corevm/internal/compiler"
	"corevm/internal/diag"
	"corevm/internal/eventloop"
	"corevm/internal/heap"
	"corevm/internal/interp"
	"corevm/internal/object"
	"corevm/internal/shape"
	"corevm/internal/value"
)

// Config tunes a fresh Engine. Zero-value fields fall back to the same
// defaults heap.New and eventloop.New already apply, so Config{} is a
// usable default.
type Config struct {
	NurseryObjects int
	PromotionAge   uint8
	Metrics        *Metrics
}

// Option mutates a Config during New; the functional-options idiom means
// adding a tunable later never breaks an existing call site.
type Option func(*Config)

// WithNurserySize overrides the nursery's object-count threshold before a
// minor collection runs, expressed in object counts rather than bytes to
// match heap.Config.
func WithNurserySize(n int) Option {
	return func(c *Config) { c.NurseryObjects = n }
}

// WithPromotionAge overrides how many minor collections a surviving object
// rides out in the nursery before promotion to the old generation.
func WithPromotionAge(age uint8) Option {
	return func(c *Config) { c.PromotionAge = age }
}

// WithMetrics installs a pre-built Metrics registry instead of the default
// one New creates, so a host process can share one Prometheus registry
// across several Engines.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// Engine is one independent execution context: its own heap, shape table,
// global scope, interpreter, and microtask/timer loop. ID exists purely so
// a host embedding several engines (a worker pool, say) can label metrics
// and logs by instance without reaching for a pointer's string form.
type Engine struct {
	ID uuid.UUID

	Heap   *heap.Heap
	Shapes *shape.Table
	Global *object.Env
	VM     *interp.VM
	Loop   *eventloop.Loop

	Metrics *Metrics

	bg     *errgroup.Group
	bgStop context.CancelFunc
}

// schedulerAdapter satisfies interp.Scheduler over an *eventloop.Loop
// without eventloop needing to import interp's Scheduler interface itself
// (eventloop already imports interp to drive Promise resumption the other
// way; declaring the interface in interp and adapting here, rather than
// asserting eventloop.Loop against it directly, keeps that one-way edge
// honest instead of relying on structural luck).
type schedulerAdapter struct{ loop *eventloop.Loop }

func (s schedulerAdapter) EnqueueMicrotask(job func()) { s.loop.EnqueueMicrotask(job) }

// New constructs an Engine: a fresh heap and shape table, object.Bind to
// wire them into the object package's constructors, an empty global scope,
// an interpreter over all three, and a running event loop. Call Close when
// done to stop the heap's background marker goroutine.
func New(opts ...Option) *Engine {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := heap.New(heap.Config{NurseryObjects: cfg.NurseryObjects, PromotionAge: cfg.PromotionAge})
	shapes := shape.NewTable()
	object.Bind(h, shapes)

	global := object.NewEnv(nil, 0)
	vm := interp.New(h, shapes, global)
	loop := eventloop.New()
	vm.Scheduler = schedulerAdapter{loop: loop}
	h.SetFinalizationSink(func(job func()) { loop.EnqueueMicrotask(job) })

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.attach(h, vm)

	ctx, cancel := context.WithCancel(context.Background())
	g, _ := errgroup.WithContext(ctx)

	return &Engine{
		ID:      uuid.New(),
		Heap:    h,
		Shapes:  shapes,
		Global:  global,
		VM:      vm,
		Loop:    loop,
		Metrics: metrics,
		bg:      g,
		bgStop:  cancel,
	}
}

// Close stops the heap's background marking goroutine. It does not drain
// the event loop first; call RunUntilEmpty (or Run, which does it for
// you) before Close if pending timers/microtasks still matter.
func (e *Engine) Close() error {
	e.bgStop()
	_ = e.bg.Wait()
	return e.Heap.Close()
}

// Compile turns a parsed program into a callable top-level function.
// Parsing itself is out of this engine's scope (spec's Non-goals name it
// explicitly); callers hand in an already-built *ast.Program, whether from
// a host-embedded parser or a programmatically constructed AST.
func (e *Engine) Compile(prog *ast.Program) (*object.ClosureObject, []*diag.Thrown) {
	chunk, errs := compiler.Compile(prog)
	if len(errs) > 0 {
		return nil, errs
	}
	fn := object.NewFunctionObject(chunk)
	return object.NewClosureObject(fn, nil), nil
}

// Run compiles and executes prog's top-level statements to completion,
// then drains the event loop: a script's own top-level code is itself a
// macrotask, and Run doesn't return "done" until every microtask and timer
// it scheduled has too.
func (e *Engine) Run(prog *ast.Program) (value.Value, *diag.Thrown) {
	closure, errs := e.Compile(prog)
	if len(errs) > 0 {
		return value.Undefined, errs[0]
	}
	v, thrown := e.VM.Run(closure, value.Undefined, nil)
	if thrown != nil {
		return v, thrown
	}
	e.Loop.RunUntilEmpty()
	return v, nil
}

// Call invokes an already-compiled closure synchronously, the entry point
// a host uses to call back into script from native code (a callback
// registered via a builtin, for instance) without going through Run's
// compile-then-drain-loop ceremony.
func (e *Engine) Call(callee value.Value, this value.Value, args []value.Value) (value.Value, *diag.Thrown) {
	return e.VM.Call(callee, this, args)
}

// SaveCache serializes closure's compiled chunk to w, so a later process
// can skip recompiling identical source. Tiered code is never persisted;
// CompiledBaseline/CompiledOptimized are rebuilt from the invocation
// counters the cached chunk's FeedbackVector starts fresh, exactly as if
// the function were freshly compiled from source.
func (e *Engine) SaveCache(w io.Writer, closure *object.ClosureObject) error {
	return bytecode.Serialize(w, closure.Function.Chunk)
}

// LoadCache deserializes a chunk written by SaveCache and wraps it back
// into a callable closure.
func (e *Engine) LoadCache(r io.Reader) (*object.ClosureObject, error) {
	chunk, err := bytecode.Deserialize(r)
	if err != nil {
		return nil, err
	}
	fn := object.NewFunctionObject(chunk)
	return object.NewClosureObject(fn, nil), nil
}

// HeapStats is a thin passthrough, kept on Engine so a host never needs to
// reach through to e.Heap directly just to render a diagnostics report.
func (e *Engine) HeapStats() heap.Stats { return e.Heap.Stats() }
