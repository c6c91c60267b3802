package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apiclient-shell/internal/protocol"
	"go.uber.org/zap"
)

// Method names a remotely callable worker operation.
type Method string

// The complete set of worker operations.
const (
	MethodCoreRequest Method = "handleCoreRequest"
	MethodCoreProject Method = "handleCoreProject"
	MethodHTTPSend    Method = "handleHttpSend"
)

// Handler executes one method with the Command's positional arguments.
type Handler func(ctx context.Context, args []any) (any, error)

// Dispatcher serves Commands on the worker side.
type Dispatcher struct {
	logger  *logging.Logger
	methods map[Method]Handler
	tracer  *tracing.Tracer
}

// NewDispatcher creates a dispatcher over a fixed method table.
func NewDispatcher(logger *logging.Logger, methods map[Method]Handler) *Dispatcher {
	table := make(map[Method]Handler, len(methods))
	for name, h := range methods {
		table[name] = h
	}
	return &Dispatcher{logger: logger.Named("worker"), methods: table}
}

// WithTracer records a span per call, joined to the trace the Command carries.
func (d *Dispatcher) WithTracer(t *tracing.Tracer) *Dispatcher {
	d.tracer = t
	return d
}

// Serve reads Commands until the controller goes away, answering each identifiable
// Command with exactly one Event. In-flight calls are awaited before returning.
func (d *Dispatcher) Serve(ctx context.Context, conn *protocol.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if msg.Cmd == protocol.CmdInitialize {
			if err := conn.Send(protocol.Message{Cmd: protocol.CmdInitialized}); err != nil {
				return err
			}
			continue
		}

		switch msg.Kind {
		case protocol.KindEvent:
			// events come from this side
			continue
		case protocol.KindCommand:
		case "":
			d.logger.Warn("Invalid message received on the proxy channel", zap.Stringer("message", msg))
			continue
		default:
			d.logger.Warn("Unknown message kind", zap.String("kind", string(msg.Kind)))
			continue
		}

		id, ok := msg.NumericID()
		if !ok {
			d.logger.Warn("Command dropped, id is not a number", zap.Stringer("message", msg))
			continue
		}

		handler, fn, err := d.lookup(msg)
		if err != nil {
			d.reply(conn, protocol.NewError(id, err.Error()))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.reply(conn, d.call(tracing.Extract(ctx, msg.Trace), id, fn, handler, msg.Args))
		}()
	}
}

func (d *Dispatcher) lookup(msg protocol.Message) (Handler, string, error) {
	fn, ok := msg.FuncName()
	if !ok {
		return nil, "", fmt.Errorf("Invalid function name: %v", msg.Fn)
	}
	handler, ok := d.methods[Method(fn)]
	if !ok {
		return nil, fn, fmt.Errorf("Unknown function: %s", fn)
	}
	return handler, fn, nil
}

func (d *Dispatcher) call(ctx context.Context, id uint64, fn string, h Handler, args []any) (ev protocol.Message) {
	span, ctx := d.tracer.StartSpan(ctx, "handle "+fn)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Worker method panicked",
				append(tracing.Fields(ctx), zap.String("fn", fn), zap.Any("panic", r))...)
			ev = protocol.NewError(id, fmt.Sprintf("%v", r))
		}
		var err error
		if ev.Type == protocol.EventError {
			err = errors.New(ev.Message)
		}
		d.tracer.End(span, err)
	}()

	result, err := h(ctx, args)
	if err != nil {
		d.logger.Debug("Worker method failed",
			append(tracing.Fields(ctx), zap.String("fn", fn), zap.Uint64("id", id), zap.Error(err))...)
		return protocol.NewError(id, err.Error())
	}
	return protocol.NewResult(id, result)
}

func (d *Dispatcher) reply(conn *protocol.Conn, ev protocol.Message) {
	if err := conn.Send(ev); err != nil {
		d.logger.Error("Unable to send event", zap.Stringer("event", ev), zap.Error(err))
	}
}
