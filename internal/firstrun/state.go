package firstrun

import "github.com/GriffinCanCode/apiclient-shell/internal/store"

// State is the configuration stage the application is in.
type State int

const (
	NeedsInit State = iota
	NeedsAuth
	Ready
)

func (s State) String() string {
	switch s {
	case NeedsInit:
		return "needs-init"
	case NeedsAuth:
		return "needs-auth"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Compute derives the state from the stored environments. A current key that
// does not resolve to a stored entry needs init.
func Compute(set *store.EnvironmentSet) State {
	if set == nil || len(set.Environments) == 0 || set.Current == "" {
		return NeedsInit
	}
	env, ok := set.Find(set.Current)
	if !ok {
		return NeedsInit
	}
	if !env.Authenticated && !env.IsLocal() {
		return NeedsAuth
	}
	return Ready
}

// finishes reports whether env completes the store screens.
func finishes(env store.Environment) bool {
	return env.IsLocal() || env.Authenticated
}
