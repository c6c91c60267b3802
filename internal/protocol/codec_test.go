package protocol

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericID(t *testing.T) {
	tests := []struct {
		name string
		id   any
		want uint64
		ok   bool
	}{
		{"decoded number", float64(7), 7, true},
		{"native", uint64(3), 3, true},
		{"fractional", 1.5, 0, false},
		{"negative", float64(-1), 0, false},
		{"string", "1", 0, false},
		{"missing", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Message{ID: tt.id}.NumericID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFuncName(t *testing.T) {
	fn, ok := Message{Fn: "handleHttpSend"}.FuncName()
	assert.True(t, ok)
	assert.Equal(t, "handleHttpSend", fn)

	_, ok = Message{Fn: 12.0}.FuncName()
	assert.False(t, ok)

	_, ok = Message{Fn: ""}.FuncName()
	assert.False(t, ok)
}

func TestPipeRoundTrip(t *testing.T) {
	controller, worker := Pipe()
	defer controller.Close()

	go func() {
		msg, err := worker.Receive()
		if err != nil {
			return
		}
		id, _ := msg.NumericID()
		_ = worker.Send(NewResult(id, map[string]any{"echo": msg.Args[0]}))
		_ = worker.Close()
	}()

	require.NoError(t, controller.Send(NewCommand(1, "handleCoreRequest", []any{"hello"})))

	ev, err := controller.Receive()
	require.NoError(t, err)
	assert.Equal(t, KindEvent, ev.Kind)
	assert.Equal(t, EventResult, ev.Type)
	id, ok := ev.NumericID()
	require.True(t, ok)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, map[string]any{"echo": "hello"}, ev.Result)

	_, err = controller.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandshakeFrames(t *testing.T) {
	assert.True(t, Message{Cmd: CmdInitialize}.IsHandshake())
	assert.True(t, Message{Cmd: CmdInitialized}.IsHandshake())
	assert.False(t, NewCommand(1, "x", nil).IsHandshake())
}
