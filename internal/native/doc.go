// Package native mirrors the record layout of the engine's global state:
// name lists, command parameter records, elements, nodes, sequences and
// tables, plus the Backend interface every engine driver implements.
//
// The types here are deliberately raw. Strings are NUL-terminated byte
// slices where nil stands for a NULL pointer, type tags are the engine's
// integer discriminators, and table columns are the engine's own buffers.
// Turning them into typed host values is the job of the marshal, param,
// beamline and table packages.
//
// # Drivers
//
// Backends register themselves under a name with Register and are opened
// with Open. The pure-Go reference engine registers as "memory"; the cgo
// binding to the real library registers as "madx" when built with the
// madx build tag.
package native
