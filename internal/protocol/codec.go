package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"
)

// Conn reads and writes newline-delimited Message frames over a byte stream.
// Send is safe for concurrent use; Receive must be called from a single goroutine.
type Conn struct {
	r io.Reader
	w io.Writer
	c io.Closer

	dec sonic.Decoder

	mu  sync.Mutex
	enc sonic.Encoder
}

// NewConn wraps a reader and a writer. closer, when not nil, is invoked by Close.
func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	return &Conn{
		r:   r,
		w:   w,
		c:   closer,
		dec: sonic.ConfigDefault.NewDecoder(r),
		enc: sonic.ConfigDefault.NewEncoder(w),
	}
}

// Send writes one frame.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg, err)
	}
	return nil
}

// Receive reads the next frame. It returns io.EOF once the peer is gone.
func (c *Conn) Receive() (Message, error) {
	var msg Message
	if err := c.dec.Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("receive: %w", err)
	}
	return msg, nil
}

// Close releases the underlying transport.
func (c *Conn) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}

// Pipe returns two connected in-memory Conns, useful for running a worker in-process.
func Pipe() (controller *Conn, worker *Conn) {
	cmdR, cmdW := io.Pipe()
	evR, evW := io.Pipe()

	controller = NewConn(evR, cmdW, multiCloser{cmdW, evR})
	worker = NewConn(cmdR, evW, multiCloser{evW, cmdR})
	return controller, worker
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
