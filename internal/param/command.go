package param

import (
	"fmt"

	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

// Command is a decoded command: a name plus parameters that keep their
// stored order but are addressed by name. The zero value is an empty
// command ready to use.
type Command struct {
	Name   string
	order  []string
	values map[string]Value
}

// NewCommand returns an empty command called name.
func NewCommand(name string) *Command {
	return &Command{Name: name, values: make(map[string]Value)}
}

// Set stores v under name. Setting an existing name replaces the value but
// keeps the position of the first occurrence.
func (c *Command) Set(name string, v Value) {
	if c.values == nil {
		c.values = make(map[string]Value)
	}
	if _, exists := c.values[name]; !exists {
		c.order = append(c.order, name)
	}
	c.values[name] = v
}

// Get returns the parameter called name.
func (c *Command) Get(name string) (Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Len returns the number of distinct parameters.
func (c *Command) Len() int { return len(c.order) }

// Names returns the parameter names in stored order.
func (c *Command) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Map returns a copy of the name to value mapping.
func (c *Command) Map() map[string]Value {
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Native returns the parameters as plain Go values, see Native.
func (c *Command) Native() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = Native(v)
	}
	return out
}

// DecodeCommand walks the parameter records of raw in stored order. If a
// name repeats, the last record wins. A nil command decodes to an empty one.
func DecodeCommand(raw *native.Command) (*Command, error) {
	if raw == nil {
		return NewCommand(""), nil
	}
	cmd := NewCommand(marshal.String(raw.Name))
	for _, p := range raw.Params {
		if p == nil {
			continue
		}
		v, err := Decode(p)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", cmd.Name, err)
		}
		cmd.Set(marshal.String(p.Name), v)
	}
	return cmd, nil
}
