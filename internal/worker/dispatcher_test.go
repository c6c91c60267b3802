package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoMethods() map[Method]Handler {
	return map[Method]Handler{
		MethodCoreRequest: func(_ context.Context, args []any) (any, error) {
			return args, nil
		},
		MethodHTTPSend: func(_ context.Context, args []any) (any, error) {
			return nil, errors.New("connection refused")
		},
		MethodCoreProject: func(_ context.Context, args []any) (any, error) {
			panic("bad project")
		},
	}
}

// startDispatcher runs a dispatcher on the worker end of a pipe and returns the controller end.
func startDispatcher(t *testing.T) *protocol.Conn {
	t.Helper()
	controller, workerConn := protocol.Pipe()
	d := NewDispatcher(logging.NewNop(), echoMethods())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Serve(context.Background(), workerConn)
		_ = workerConn.Close()
	}()
	t.Cleanup(func() {
		_ = controller.Close()
		<-done
	})
	return controller
}

func receive(t *testing.T, conn *protocol.Conn) protocol.Message {
	t.Helper()
	ch := make(chan protocol.Message, 1)
	go func() {
		msg, err := conn.Receive()
		if err == nil {
			ch <- msg
		}
	}()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return protocol.Message{}
	}
}

func TestDispatcherHandshake(t *testing.T) {
	conn := startDispatcher(t)

	require.NoError(t, conn.Send(protocol.Message{Cmd: protocol.CmdInitialize}))
	assert.Equal(t, protocol.CmdInitialized, receive(t, conn).Cmd)
}

func TestDispatcherResult(t *testing.T) {
	conn := startDispatcher(t)

	require.NoError(t, conn.Send(protocol.NewCommand(1, string(MethodCoreRequest), []any{"a", 2.0})))
	ev := receive(t, conn)

	assert.Equal(t, protocol.KindEvent, ev.Kind)
	assert.Equal(t, protocol.EventResult, ev.Type)
	assert.Equal(t, []any{"a", 2.0}, ev.Result)
}

func TestDispatcherErrors(t *testing.T) {
	tests := []struct {
		name    string
		msg     protocol.Message
		message string
	}{
		{
			name:    "handler error carries only the message",
			msg:     protocol.NewCommand(3, string(MethodHTTPSend), nil),
			message: "connection refused",
		},
		{
			name:    "unknown function",
			msg:     protocol.NewCommand(4, "handleNothing", nil),
			message: "Unknown function: handleNothing",
		},
		{
			name:    "malformed function",
			msg:     protocol.Message{Kind: protocol.KindCommand, ID: 5, Fn: 12},
			message: "Invalid function name: 12",
		},
		{
			name:    "panic",
			msg:     protocol.NewCommand(6, string(MethodCoreProject), nil),
			message: "bad project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startDispatcher(t)
			require.NoError(t, conn.Send(tt.msg))

			ev := receive(t, conn)
			assert.Equal(t, protocol.EventError, ev.Type)
			assert.Equal(t, tt.message, ev.Message)

			want, _ := tt.msg.NumericID()
			got, ok := ev.NumericID()
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestDispatcherSkipsUnidentifiable(t *testing.T) {
	conn := startDispatcher(t)

	// not answerable: no numeric id, an event, a frame without kind
	require.NoError(t, conn.Send(protocol.Message{Kind: protocol.KindCommand, ID: "x", Fn: "handleHttpSend"}))
	require.NoError(t, conn.Send(protocol.NewResult(9, "echo")))
	require.NoError(t, conn.Send(protocol.Message{ID: 10}))
	require.NoError(t, conn.Send(protocol.NewCommand(11, string(MethodCoreRequest), []any{"ok"})))

	ev := receive(t, conn)
	id, _ := ev.NumericID()
	assert.Equal(t, uint64(11), id)
}
