// Package core is the orchestration layer.  It binds the listener,
// dispatches accepted connections to the fake-login capability, and
// owns the process lifecycle from startup to drain.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  capability  →  core  →  cmd (CLI)
//
// The builder in this package is the single place a Config turns into
// running components.
package core

import "context"

// Mode represents a complete operational mode of sshlure.  Each mode
// owns its full lifecycle from bind to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
