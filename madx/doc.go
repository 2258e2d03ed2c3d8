// Package madx is the host-side entry point to the accelerator engine.
//
// The engine keeps all of its state in process-wide globals, so at most one
// Engine exists at a time. Start creates it, Finish tears it down, and every
// other method reads or drives the live engine:
//
//	e, err := madx.Start(ctx)
//	if err != nil {
//		return err
//	}
//	defer e.Finish()
//
//	if err := e.Call("lattice.madx"); err != nil {
//		return err
//	}
//	if err := e.Submit("use, sequence=fodo; twiss;"); err != nil {
//		return err
//	}
//	betx, err := e.TableColumn("twiss", "betx")
//
// Numeric table columns are returned as views over the engine's own
// buffers. A view stays readable only until the next call that can change
// engine state (Submit, Command, Set, Call or Finish); after that it panics
// on access. Copy the data out if you need it longer.
//
// The backend driver is chosen by configuration. The pure-Go "memory"
// backend is always linked in; the "madx" backend binds the native library
// and needs the madx build tag.
package madx
