// Package errdefs defines the error taxonomy shared by every boundary of the
// binding: lookup misses, invalid engine state, unknown native
// discriminators and structural faults in the engine's object graph.
//
// Each typed error matches one of the exported sentinels through errors.Is,
// so callers can branch on the failure class without caring about the
// concrete payload.
package errdefs
