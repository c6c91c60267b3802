package bindings

import (
	"context"

	"github.com/GriffinCanCode/apiclient-shell/internal/worker"
)

// Invoker calls a worker method. worker.Supervisor satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, fn string, args ...any) (any, error)
}

// Proxy serves the project-proxy channel by delegating to the worker.
type Proxy struct {
	worker Invoker
}

// NewProxy creates the proxy handler.
func NewProxy(w Invoker) *Proxy {
	return &Proxy{worker: w}
}

func (p *Proxy) Channel() string { return ChannelProxy }

// Handle dispatches core and http groups.
func (p *Proxy) Handle(ctx context.Context, call *Call) (any, error) {
	group, _ := stringArg(call.Args, 0)
	args := call.Args[min(1, len(call.Args)):]

	switch group {
	case "core":
		return p.core(ctx, args)
	case "http":
		return p.http(ctx, args)
	default:
		return nil, unknownCommand(arg(call.Args, 0))
	}
}

func (p *Proxy) core(ctx context.Context, args []any) (any, error) {
	kind, _ := stringArg(args, 0)
	switch kind {
	case "request":
		return p.worker.Invoke(ctx, string(worker.MethodCoreRequest), arg(args, 1))
	case "http-project":
		token, ok := keyArg(args, 2)
		if !ok {
			return nil, invalid("Store token is not set.")
		}
		storeURI, ok := keyArg(args, 3)
		if !ok {
			return nil, invalid("Store URI is not set.")
		}
		return p.worker.Invoke(ctx, string(worker.MethodCoreProject), arg(args, 1), token, storeURI)
	default:
		return nil, invalid("Unknown core: %v", arg(args, 0))
	}
}

func (p *Proxy) http(ctx context.Context, args []any) (any, error) {
	kind, _ := stringArg(args, 0)
	switch kind {
	case "send":
		return p.worker.Invoke(ctx, string(worker.MethodHTTPSend), arg(args, 1), arg(args, 2))
	default:
		return nil, invalid("Unknown http: %v", arg(args, 0))
	}
}
