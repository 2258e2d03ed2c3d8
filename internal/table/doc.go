// Package table reads engine result tables: column names, the header
// summary, and individual columns.
//
// Numeric columns are returned as a FloatView that aliases the engine's
// live buffer. A view is tied to the engine epoch it was created in; once
// the engine runs another mutating call the view is stale, element access
// panics with ErrStaleView and Copy returns that error. Callers that need
// the data longer must Copy it before the next call.
package table
