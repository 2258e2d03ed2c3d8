package madx

import (
	"io"
	"log/slog"
)

type options struct {
	cfg    Config
	logger *slog.Logger
	out    io.Writer
	// Overrides applied on top of cfg.
	backend    *string
	commandLog *string
}

// Option configures Start.
type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger makes the session log through logger instead of building one
// from the configured level and format.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOutput sets the writer of the default logger. It defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithBackend selects the engine driver by name.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = &name }
}

// WithCommandLog records every submitted command in the file at path.
func WithCommandLog(path string) Option {
	return func(o *options) { o.commandLog = &path }
}
