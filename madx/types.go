package madx

import (
	"github.com/vk/madxbind/internal/beamline"
	"github.com/vk/madxbind/internal/cmdtext"
	"github.com/vk/madxbind/internal/config"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/param"
	"github.com/vk/madxbind/internal/table"
)

// Decoded engine values.
type (
	Value       = param.Value
	Command     = param.Command
	Bool        = param.Bool
	Int         = param.Int
	Float       = param.Float
	String      = param.String
	FloatArray  = param.FloatArray
	StringArray = param.StringArray
	Constraint  = param.Constraint
	LowerBound  = param.LowerBound
	UpperBound  = param.UpperBound
	Bounds      = param.Bounds
	Exact       = param.Exact

	Node         = beamline.Node
	ElementNode  = beamline.ElementNode
	SequenceNode = beamline.SequenceNode

	Column       = table.Column
	FloatView    = table.FloatView
	StringColumn = table.StringColumn
	HeaderValue  = table.HeaderValue

	// Expr and Deferred mark argument values of Command and Set that are
	// written verbatim as expressions.
	Expr     = cmdtext.Expr
	Deferred = cmdtext.Deferred

	Config = config.Config
)

// Errors. Every typed error matches one of the sentinels with errors.Is.
var (
	ErrNotFound             = errdefs.ErrNotFound
	ErrInvalidState         = errdefs.ErrInvalidState
	ErrInvalidParameterType = errdefs.ErrInvalidParameterType
	ErrIntegerRange         = errdefs.ErrIntegerRange
	ErrUnknownColumnType    = errdefs.ErrUnknownColumnType
	ErrEmptyNode            = errdefs.ErrEmptyNode
	ErrEngineNotStarted     = errdefs.ErrEngineNotStarted
	ErrStaleView            = errdefs.ErrStaleView
)

type (
	NotFoundError             = errdefs.NotFoundError
	ColumnNotFoundError       = errdefs.ColumnNotFoundError
	InvalidStateError         = errdefs.InvalidStateError
	InvalidParameterTypeError = errdefs.InvalidParameterTypeError
	IntegerRangeError         = errdefs.IntegerRangeError
	UnknownColumnTypeError    = errdefs.UnknownColumnTypeError
	EmptyNodeError            = errdefs.EmptyNodeError
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads configuration from defaults, the MADXBIND_* environment
// and, when path is not empty, a config file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }
