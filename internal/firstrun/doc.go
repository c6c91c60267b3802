// Package firstrun runs the screens shown before the main window.
//
// The gate walks the application through telemetry consent and store
// configuration. Progress is derived from broadcast messages and window
// closes, never from a stored flag:
//
//	NeedsInit -> NeedsAuth -> Ready
//
// The state is recomputed from the Environment Configuration Set on every
// start. Closing a screen always completes it, so the gate never hangs.
//
// Example Usage:
//
//	gate := firstrun.NewGate(opts, launcher, registry, bus, envs, logger)
//	main, err := gate.Run(ctx)
//	if err != nil {
//	    return err
//	}
package firstrun
