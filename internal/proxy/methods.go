package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/worker"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Service implements the worker method table.
type Service struct {
	client *Client
	runner *Runner
	logger *logging.Logger
}

// NewService creates the worker-side service.
func NewService(client *Client, logger *logging.Logger) *Service {
	return &Service{client: client, runner: NewRunner(client), logger: logger}
}

// Methods returns the static dispatch table served by the worker.
func (s *Service) Methods() map[worker.Method]worker.Handler {
	return map[worker.Method]worker.Handler{
		worker.MethodCoreRequest: s.handleCoreRequest,
		worker.MethodCoreProject: s.handleCoreProject,
		worker.MethodHTTPSend:    s.handleHTTPSend,
	}
}

// CoreRequest executes a single request with variables applied.
func (s *Service) CoreRequest(ctx context.Context, init RequestInit) (*Result[RequestLog], error) {
	log, err := s.client.Send(ctx, init.Request.Apply(init.Variables), init.Config)
	if err != nil {
		return nil, err
	}
	return &Result[RequestLog]{Result: log, Variables: init.Variables}, nil
}

// CoreProject reads a project from the store and runs it.
func (s *Service) CoreProject(ctx context.Context, init ProjectInit, token, storeURI string) (*Result[*ProjectExecutionLog], error) {
	if init.PID == "" {
		return nil, errors.New("The project id is required.")
	}
	project, err := s.client.FetchProject(ctx, storeURI, token, init.PID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Running project",
		zap.String("pid", init.PID),
		zap.Int("requests", len(project.Requests)),
		zap.Bool("parallel", init.Options.Parallel))

	report, err := s.runner.Run(ctx, project, init.Options)
	if err != nil {
		return nil, err
	}
	return &Result[*ProjectExecutionLog]{Result: report}, nil
}

// HTTPSend executes a raw request and returns the response only.
func (s *Service) HTTPSend(ctx context.Context, req HTTPRequest, cfg RequestConfig) (*Response, error) {
	log, err := s.client.Send(ctx, req, cfg)
	if err != nil {
		return nil, err
	}
	return log.Response, nil
}

func (s *Service) handleCoreRequest(ctx context.Context, args []any) (any, error) {
	var init RequestInit
	if err := decodeArg(args, 0, &init); err != nil {
		return nil, err
	}
	return s.CoreRequest(ctx, init)
}

func (s *Service) handleCoreProject(ctx context.Context, args []any) (any, error) {
	var (
		init            ProjectInit
		token, storeURI string
	)
	if err := decodeArg(args, 0, &init); err != nil {
		return nil, err
	}
	if err := decodeArg(args, 1, &token); err != nil {
		return nil, err
	}
	if err := decodeArg(args, 2, &storeURI); err != nil {
		return nil, err
	}
	return s.CoreProject(ctx, init, token, storeURI)
}

func (s *Service) handleHTTPSend(ctx context.Context, args []any) (any, error) {
	var (
		req HTTPRequest
		cfg RequestConfig
	)
	if err := decodeArg(args, 0, &req); err != nil {
		return nil, err
	}
	if err := decodeArg(args, 1, &cfg); err != nil {
		return nil, err
	}
	return s.HTTPSend(ctx, req, cfg)
}

// decodeArg converts positional argument i into dst. A missing or null argument leaves dst untouched.
func decodeArg(args []any, i int, dst any) error {
	if i >= len(args) || args[i] == nil {
		return nil
	}
	raw, err := sonic.Marshal(args[i])
	if err != nil {
		return fmt.Errorf("argument %d: %w", i, err)
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("argument %d is invalid: %w", i, err)
	}
	return nil
}
