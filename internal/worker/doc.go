// Package worker supervises the single worker process and implements its side of
// the command/event protocol.
//
// The controller side is the Supervisor: it spawns the worker from the current
// executable, performs the initialize handshake and correlates Events back to the
// pending Invoke calls. The worker side is the Dispatcher: it resolves each
// Command's function name against a static method table and answers with exactly
// one Event per identifiable Command.
//
// The worker is never respawned. When it exits, every pending call is rejected
// with ErrWorkerUnavailable instead of hanging.
package worker
