package madx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vk/madxbind/internal/beamline"
	"github.com/vk/madxbind/internal/cmdtext"
	"github.com/vk/madxbind/internal/config"
	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/history"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/param"
	"github.com/vk/madxbind/internal/registry"
	"github.com/vk/madxbind/internal/table"

	// Engine backends.
	_ "github.com/vk/madxbind/internal/madxc"
	_ "github.com/vk/madxbind/internal/memengine"
)

var (
	liveMu sync.Mutex
	live   *Engine
)

// Engine is the live engine session. It is not safe for concurrent use.
type Engine struct {
	backend     native.Backend
	backendName string
	logger      *slog.Logger
	engineLog   *slog.Logger
	history     *history.Log
	epoch       table.Epoch

	finished bool
	// broken is set once the engine's object graph was found corrupt.
	broken error
}

// Start starts the engine. Only one engine may be live per process; a
// second Start before Finish fails with an InvalidStateError.
func Start(ctx context.Context, opts ...Option) (*Engine, error) {
	o := options{cfg: config.Default(), out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg
	if o.backend != nil {
		cfg.Backend = *o.backend
	}
	if o.commandLog != nil {
		cfg.CommandLog = *o.commandLog
	}
	if err := cfg.Validate(native.Drivers()...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg.LogLevel, cfg.LogFormat, o.out)
	}

	liveMu.Lock()
	defer liveMu.Unlock()
	if live != nil {
		return nil, errdefs.InvalidState("engine already started")
	}

	backend, err := native.Open(cfg.Backend)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		backend:     backend,
		backendName: cfg.Backend,
		logger:      logger,
		engineLog:   backendLogger(logger, cfg.Verbose),
	}
	if err := backend.Start(e.context(ctx)); err != nil {
		return nil, fmt.Errorf("failed to start %s backend: %w", cfg.Backend, err)
	}
	if cfg.CommandLog != "" {
		h, err := history.Open(cfg.CommandLog)
		if err != nil {
			_ = backend.Finish(e.context(ctx))
			return nil, err
		}
		e.history = h
	}

	live = e
	logger.Debug("Engine started.", "backend", cfg.Backend, "command_log", cfg.CommandLog)
	return e, nil
}

// context returns ctx carrying the backend's logger.
func (e *Engine) context(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctxlog.WithLogger(ctx, e.engineLog)
}

// check guards every operation on the engine.
func (e *Engine) check() error {
	if e == nil || e.finished {
		return errdefs.ErrEngineNotStarted
	}
	if e.broken != nil {
		return &errdefs.InvalidStateError{Reason: "engine is broken", Err: e.broken}
	}
	return nil
}

// Finish stops the engine and releases the process-wide slot, after which
// Start may be called again. Views obtained earlier become stale.
func (e *Engine) Finish() error {
	if e == nil || e.finished {
		return errdefs.ErrEngineNotStarted
	}
	liveMu.Lock()
	defer liveMu.Unlock()

	e.finished = true
	e.epoch.Advance()
	if live == e {
		live = nil
	}
	errs := []error{e.backend.Finish(e.context(context.Background()))}
	errs = append(errs, e.history.Close())
	e.logger.Debug("Engine finished.", "backend", e.backendName)
	return errors.Join(errs...)
}

// Backend returns the name of the driver the engine runs on.
func (e *Engine) Backend() string { return e.backendName }

// Submit sends text to the engine's interpreter. The text is lower-cased
// outside of quoted strings first. Problems inside the text are reported
// by the engine as warnings, not as errors.
func (e *Engine) Submit(text string) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.history.Record(text); err != nil {
		e.logger.Warn("Failed to record command.", "error", err)
	}
	folded := marshal.Fold(text)
	e.epoch.Advance()
	e.logger.Debug("Submitting input.", "text", folded)
	return e.backend.Input(e.context(context.Background()), marshal.Encode(folded))
}

// Command submits the statement `name, key=value, ...;`. Values are Go
// values (numbers, strings, bools and slices of those), Expr, Deferred or
// cty values; nil values are left out.
func (e *Engine) Command(name string, args map[string]any) error {
	text, err := cmdtext.Format(name, args)
	if err != nil {
		return fmt.Errorf("command %q: %w", name, err)
	}
	return e.Submit(text)
}

// Set assigns a variable. A Deferred value makes the engine re-evaluate the
// expression on every use.
func (e *Engine) Set(name string, value any) error {
	text, err := cmdtext.Assign(name, value)
	if err != nil {
		return err
	}
	return e.Submit(text)
}

// Call makes the engine read and execute the command file at path.
func (e *Engine) Call(path string) error {
	return e.Command("call", map[string]any{"file": path})
}

// Evaluate evaluates an expression against the engine's current variables.
func (e *Engine) Evaluate(expr string) (float64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	v, err := e.backend.Evaluate(e.context(context.Background()), marshal.Encode(marshal.Fold(expr)))
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return v, nil
}

func (e *Engine) sequence(name string) (*native.Sequence, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	seq, err := registry.Sequence(e.backend.Sequences(), name)
	e.logger.Debug("Sequence lookup.", "name", name, "found", err == nil)
	return seq, err
}

func (e *Engine) table(name string) (*native.Table, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	t, err := registry.Table(e.backend.Tables(), name)
	e.logger.Debug("Table lookup.", "name", name, "found", err == nil)
	return t, err
}

// SequenceExists reports whether a sequence called name is defined.
func (e *Engine) SequenceExists(name string) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	return registry.Exists(e.backend.Sequences().Names, name), nil
}

// Sequences returns the names of all sequences in definition order.
func (e *Engine) Sequences() ([]string, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return registry.Names(e.backend.Sequences().Names), nil
}

// CurrentSequence returns the name of the active sequence.
func (e *Engine) CurrentSequence() (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	seq := e.backend.CurrentSequence()
	if seq == nil {
		return "", errdefs.InvalidState("no active sequence")
	}
	return marshal.String(seq.Name), nil
}

// Twiss returns the name of the last valid twiss table of a sequence.
func (e *Engine) Twiss(seq string) (string, error) {
	s, err := e.sequence(seq)
	if err != nil {
		return "", err
	}
	if !s.TwissValid || s.TwissTable == nil {
		return "", errdefs.InvalidState("twiss table not valid")
	}
	return table.Name(s.TwissTable), nil
}

// Beam returns the beam attached to a sequence.
func (e *Engine) Beam(seq string) (*Command, error) {
	s, err := e.sequence(seq)
	if err != nil {
		return nil, err
	}
	if s.Beam == nil {
		return nil, errdefs.InvalidState("no beam attached")
	}
	return param.DecodeCommand(s.Beam)
}

// Elements returns the declared nodes of a sequence.
func (e *Engine) Elements(seq string) ([]Node, error) {
	return e.walk(seq, beamline.Original)
}

// ExpandedElements returns the nodes of the expanded sequence, the
// sequence as it is tracked.
func (e *Engine) ExpandedElements(seq string) ([]Node, error) {
	return e.walk(seq, beamline.Expanded)
}

func (e *Engine) walk(name string, order beamline.Order) ([]Node, error) {
	s, err := e.sequence(name)
	if err != nil {
		return nil, err
	}
	nodes, err := beamline.Walk(s, order)
	if errors.Is(err, errdefs.ErrEmptyNode) {
		e.broken = err
		e.logger.Error("Engine object graph is corrupt, engine unusable.", "sequence", name, "order", order.String(), "error", err)
	}
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Tables returns the names of all tables in creation order.
func (e *Engine) Tables() ([]string, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return registry.Names(e.backend.Tables().Names), nil
}

// TableExists reports whether a table called name exists.
func (e *Engine) TableExists(name string) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	return registry.Exists(e.backend.Tables().Names, name), nil
}

// TableSummary returns the parsed header of a table.
func (e *Engine) TableSummary(name string) (map[string]HeaderValue, error) {
	t, err := e.table(name)
	if err != nil {
		return nil, err
	}
	return table.Summary(t), nil
}

// TableColumns returns the column names of a table.
func (e *Engine) TableColumns(name string) ([]string, error) {
	t, err := e.table(name)
	if err != nil {
		return nil, err
	}
	return table.Columns(t), nil
}

// TableColumn returns one column of a table. Numeric columns are views
// into engine memory, see FloatView.
func (e *Engine) TableColumn(tableName, column string) (Column, error) {
	t, err := e.table(tableName)
	if err != nil {
		return nil, err
	}
	return table.ReadColumn(&e.epoch, t, column)
}

// DefinedCommands returns the names of the commands the engine has defined.
func (e *Engine) DefinedCommands() ([]string, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return registry.Names(e.backend.Commands().Names), nil
}

// DefinedCommand returns the decoded definition of a command.
func (e *Engine) DefinedCommand(name string) (*Command, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	cmd, err := registry.Command(e.backend.Commands(), name)
	if err != nil {
		return nil, err
	}
	return param.DecodeCommand(cmd)
}
