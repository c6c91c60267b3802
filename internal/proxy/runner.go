package proxy

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner executes the requests of a project.
type Runner struct {
	client *Client
}

// NewRunner creates a runner over a client.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Run executes the selected requests for every iteration. Iterations run one after
// another unless opts.Parallel is set. Requests inside an iteration always run in
// project order, and a failed request is recorded without stopping the iteration.
func (r *Runner) Run(ctx context.Context, project *Project, opts ProjectRunOptions) (*ProjectExecutionLog, error) {
	requests, err := selectRequests(project, opts.Requests)
	if err != nil {
		return nil, err
	}
	vars, err := environmentVariables(project, opts.Environment)
	if err != nil {
		return nil, err
	}

	iterations := opts.Iterations
	if iterations < 1 {
		iterations = 1
	}

	report := &ProjectExecutionLog{
		ID:         uuid.NewString(),
		Project:    project.Key,
		Started:    time.Now().UnixMilli(),
		Iterations: make([]IterationLog, iterations),
	}

	run := func(ctx context.Context, index int) {
		it := IterationLog{Index: index, Executed: make([]RequestLog, 0, len(requests))}
		for _, pr := range requests {
			if err := ctx.Err(); err != nil {
				it.Error = err.Error()
				break
			}
			log, _ := r.client.Send(ctx, pr.Expects.Apply(vars), opts.Config)
			it.Executed = append(it.Executed, log)
		}
		report.Iterations[index] = it
	}

	if opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())
		for i := 0; i < iterations; i++ {
			g.Go(func() error {
				run(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := 0; i < iterations; i++ {
			run(ctx, i)
		}
	}

	report.Ended = time.Now().UnixMilli()
	return report, nil
}

func selectRequests(project *Project, keys []string) ([]ProjectRequest, error) {
	if len(keys) == 0 {
		return project.Requests, nil
	}
	byKey := make(map[string]ProjectRequest, len(project.Requests))
	for _, pr := range project.Requests {
		byKey[pr.Key] = pr
	}
	out := make([]ProjectRequest, 0, len(keys))
	for _, k := range keys {
		pr, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("The request %s does not exist in the project.", k)
		}
		out = append(out, pr)
	}
	return out, nil
}

func environmentVariables(project *Project, selector string) (map[string]string, error) {
	if selector == "" {
		return nil, nil
	}
	for _, env := range project.Environments {
		if env.Key != selector && env.Name != selector {
			continue
		}
		vars := make(map[string]string, len(env.Variables))
		for _, v := range env.Variables {
			if v.Enabled != nil && !*v.Enabled {
				continue
			}
			vars[v.Name] = v.Value
		}
		return vars, nil
	}
	return nil, fmt.Errorf("The environment %s does not exist in the project.", selector)
}
