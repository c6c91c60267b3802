package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/correlation"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apiclient-shell/internal/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Observer receives call statistics. monitoring.Metrics satisfies it.
type Observer interface {
	RecordWorkerCall(fn, outcome string, duration time.Duration)
	SetWorkerPending(n int)
}

type nopObserver struct{}

func (nopObserver) RecordWorkerCall(string, string, time.Duration) {}
func (nopObserver) SetWorkerPending(int)                         {}

// Options configures how the worker is spawned and called.
type Options struct {
	// Executable defaults to the running binary.
	Executable string
	// Args defaults to the hidden worker sub-command.
	Args []string
	Env  []string
	// CallTimeout bounds every Invoke. Zero waits for the worker indefinitely.
	CallTimeout time.Duration
	// StopTimeout is how long Close waits after SIGTERM before killing.
	StopTimeout time.Duration
	// Tracer records a child span per call. Nil disables tracing.
	Tracer *tracing.Tracer
}

type state int

const (
	stateIdle state = iota
	stateReady
	stateGone
)

// Supervisor owns the worker process and the pending call table.
type Supervisor struct {
	opts     Options
	logger   *logging.Logger
	observer Observer
	queue    *correlation.Queue

	mu      sync.RWMutex
	state   state
	conn    *protocol.Conn
	cmd     *exec.Cmd
	spawned bool // Protected by mu, set before the one process is started
	// closed once the spawned process has been reaped
	exited     chan struct{}
	exitedOnce sync.Once
}

// NewSupervisor creates an idle supervisor. observer may be nil.
func NewSupervisor(opts Options, logger *logging.Logger, observer Observer) *Supervisor {
	if observer == nil {
		observer = nopObserver{}
	}
	if len(opts.Args) == 0 {
		opts.Args = []string{"worker"}
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Supervisor{
		opts:     opts,
		logger:   logger.Named("proxy"),
		observer: observer,
		queue:    correlation.New(),
		exited:   make(chan struct{}),
	}
}

// Initialize spawns the worker and completes the handshake. A spawn failure is returned as is.
// Only one worker is ever started: later calls return ErrAlreadyStarted without spawning.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.spawned || s.state != stateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.spawned = true
	s.mu.Unlock()

	bin := s.opts.Executable
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve worker executable: %w", err)
		}
		bin = exe
	}

	// fd 3 carries commands to the worker, fd 4 carries events back
	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create command pipe: %w", err)
	}
	evR, evW, err := os.Pipe()
	if err != nil {
		cmdR.Close()
		cmdW.Close()
		return fmt.Errorf("create event pipe: %w", err)
	}

	stdout := s.logger.LineWriter(zapcore.DebugLevel, "[Proxy out]")
	stderr := s.logger.LineWriter(zapcore.ErrorLevel, "[Proxy err]")

	cmd := exec.Command(bin, s.opts.Args...)
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.ExtraFiles = []*os.File{cmdR, evW}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{cmdR, cmdW, evR, evW} {
			f.Close()
		}
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("spawn worker: %w", err)
	}

	// the child holds its own copies now
	cmdR.Close()
	evW.Close()

	s.logger.Info("Worker process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("executable", bin))

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		s.exitedOnce.Do(func() { close(s.exited) })
		stdout.Close()
		stderr.Close()
		s.logger.Warn("Worker process exited", zap.Error(err))
		s.markGone()
	}()

	return s.Attach(ctx, protocol.NewConn(evR, cmdW, closers{cmdW, evR}))
}

// Attach performs the handshake over an already established connection and starts
// the steady-state reader. Initialize calls it after spawning; tests call it directly.
func (s *Supervisor) Attach(ctx context.Context, conn *protocol.Conn) error {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return errors.New("worker already attached")
	}
	s.conn = conn
	s.mu.Unlock()

	if err := conn.Send(protocol.Message{Cmd: protocol.CmdInitialize}); err != nil {
		return fmt.Errorf("send initialize: %w", err)
	}

	ack := make(chan error, 1)
	go func() {
		// any message acknowledges the handshake
		_, err := conn.Receive()
		ack <- err
	}()

	select {
	case err := <-ack:
		if err != nil {
			s.markGone()
			return fmt.Errorf("worker handshake: %w", err)
		}
	case <-ctx.Done():
		s.markGone()
		return fmt.Errorf("worker handshake: %w", ctx.Err())
	}

	s.mu.Lock()
	if s.state == stateIdle {
		s.state = stateReady
	}
	ready := s.state == stateReady
	s.mu.Unlock()
	if !ready {
		return ErrWorkerUnavailable
	}

	go s.readLoop(conn)
	s.logger.Debug("Worker initialized")
	return nil
}

// Ready reports whether calls can be made.
func (s *Supervisor) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateReady
}

// Pending returns the number of calls awaiting an Event.
func (s *Supervisor) Pending() int {
	return s.queue.Len()
}

// Invoke sends a Command for fn and waits for its Event.
func (s *Supervisor) Invoke(ctx context.Context, fn string, args ...any) (any, error) {
	s.mu.RLock()
	st, conn := s.state, s.conn
	s.mu.RUnlock()

	switch st {
	case stateIdle:
		return nil, ErrNotInitialized
	case stateGone:
		return nil, ErrWorkerUnavailable
	}

	span, ctx := s.opts.Tracer.StartSpan(ctx, "worker "+fn)
	start := time.Now()
	call := s.queue.Add(fn, args)
	s.observer.SetWorkerPending(s.queue.Len())
	span.SetTag("call_id", strconv.FormatUint(call.ID, 10))

	frame := protocol.NewCommand(call.ID, fn, args)
	frame.Trace = tracing.Inject(ctx)
	if err := conn.Send(frame); err != nil {
		s.queue.Forget(call.ID)
		s.observer.SetWorkerPending(s.queue.Len())
		s.observer.RecordWorkerCall(fn, "transport_error", time.Since(start))
		err = fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
		s.opts.Tracer.End(span, err)
		return nil, err
	}

	var timeout <-chan time.Time
	if s.opts.CallTimeout > 0 {
		timer := time.NewTimer(s.opts.CallTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var (
		res     correlation.Result
		outcome string
	)
	select {
	case res = <-call.Done():
		outcome = "ok"
		if res.Err != nil {
			outcome = "error"
		}
	case <-timeout:
		s.queue.Forget(call.ID)
		res.Err = fmt.Errorf("%w: %s after %s", ErrCallTimeout, fn, s.opts.CallTimeout)
		outcome = "timeout"
	case <-ctx.Done():
		s.queue.Forget(call.ID)
		res.Err = ctx.Err()
		outcome = "canceled"
	}

	s.observer.SetWorkerPending(s.queue.Len())
	s.observer.RecordWorkerCall(fn, outcome, time.Since(start))
	s.opts.Tracer.End(span, res.Err)
	return res.Value, res.Err
}

func (s *Supervisor) readLoop(conn *protocol.Conn) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error("Worker transport failed", zap.Error(err))
			}
			s.markGone()
			return
		}
		s.handle(msg)
	}
}

func (s *Supervisor) handle(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindCommand:
		// our own command echoed back
		return
	case protocol.KindEvent:
		s.resolve(msg)
	case "":
		s.logger.Warn("Invalid message received from the worker", zap.Stringer("message", msg))
	default:
		s.logger.Warn("Unknown message kind from the worker", zap.String("kind", string(msg.Kind)))
	}
}

func (s *Supervisor) resolve(msg protocol.Message) {
	id, ok := msg.NumericID()
	if !ok {
		s.logger.Warn("Unknown event from the worker. Id is not a number.", zap.Stringer("message", msg))
		return
	}

	switch msg.Type {
	case protocol.EventResult:
		s.queue.Resolve(id, msg.Result)
	case protocol.EventError:
		s.queue.Reject(id, &RemoteError{Message: msg.Message})
	default:
		if s.queue.Reject(id, fmt.Errorf("unknown event type %q", msg.Type)) {
			s.logger.Warn("Unknown event type from the worker", zap.Uint64("id", id), zap.String("type", string(msg.Type)))
		}
	}
}

// markGone moves to the terminal state and rejects everything still pending.
func (s *Supervisor) markGone() {
	s.mu.Lock()
	already := s.state == stateGone
	s.state = stateGone
	conn := s.conn
	s.mu.Unlock()
	if already {
		return
	}

	if conn != nil {
		_ = conn.Close()
	}
	if n := s.queue.RejectAll(ErrWorkerUnavailable); n > 0 {
		s.logger.Warn("Rejected pending worker calls", zap.Int("count", n))
	}
	s.observer.SetWorkerPending(0)
}

// Close stops the worker: SIGTERM first, SIGKILL after StopTimeout.
func (s *Supervisor) Close() error {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()

	s.markGone()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return cmd.Process.Kill()
	}

	select {
	case <-s.exited:
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn("Worker did not stop in time, killing")
		return cmd.Process.Kill()
	}
	return nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
