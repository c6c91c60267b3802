package proxy

import (
	"net/http"
	"strings"
)

// HTTPRequest is a request definition as authored in the client.
// Headers use the "Name: value" per line text form.
type HTTPRequest struct {
	URL     string `json:"url"`
	Method  string `json:"method,omitempty"`
	Headers string `json:"headers,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// SentRequest is the request as it went out on the wire.
type SentRequest struct {
	HTTPRequest
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// Timings holds phase durations in milliseconds.
type Timings struct {
	Total float64 `json:"total"`
}

// Response is a received HTTP response.
type Response struct {
	Status      int     `json:"status"`
	StatusText  string  `json:"statusText,omitempty"`
	Headers     string  `json:"headers,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
	Payload     string  `json:"payload,omitempty"`
	Timings     Timings `json:"timings"`
}

// RequestSize reports transferred bytes.
type RequestSize struct {
	Request  int `json:"request"`
	Response int `json:"response"`
}

// RequestLog records one executed request.
type RequestLog struct {
	Request  *SentRequest `json:"request,omitempty"`
	Response *Response    `json:"response,omitempty"`
	Size     RequestSize  `json:"size"`
	Error    string       `json:"error,omitempty"`
}

// RequestConfig tunes a single execution.
type RequestConfig struct {
	// Timeout in milliseconds; zero uses the client default.
	Timeout         float64 `json:"timeout,omitempty"`
	FollowRedirects *bool   `json:"followRedirects,omitempty"`
}

func (c RequestConfig) follow() bool {
	return c.FollowRedirects == nil || *c.FollowRedirects
}

// RequestInit is the argument of a core request.
type RequestInit struct {
	Kind      string            `json:"kind,omitempty"`
	Request   HTTPRequest       `json:"request"`
	Variables map[string]string `json:"variables,omitempty"`
	Config    RequestConfig     `json:"config,omitempty"`
}

// ProjectRunOptions selects what and how a project run executes.
type ProjectRunOptions struct {
	Environment string        `json:"environment,omitempty"`
	Parallel    bool          `json:"parallel,omitempty"`
	Iterations  int           `json:"iterations,omitempty"`
	Requests    []string      `json:"requests,omitempty"`
	Config      RequestConfig `json:"config,omitempty"`
}

// ProjectInit is the argument of a project run.
type ProjectInit struct {
	Kind    string            `json:"kind,omitempty"`
	PID     string            `json:"pid"`
	Options ProjectRunOptions `json:"options,omitempty"`
}

// Variable is a project environment variable.
type Variable struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ProjectEnvironment groups variables under a key.
type ProjectEnvironment struct {
	Key       string     `json:"key"`
	Name      string     `json:"name,omitempty"`
	Variables []Variable `json:"variables,omitempty"`
}

// ProjectRequest is one request stored in a project.
type ProjectRequest struct {
	Key     string      `json:"key"`
	Name    string      `json:"name,omitempty"`
	Expects HTTPRequest `json:"expects"`
}

// Project is the stored HTTP project document.
type Project struct {
	Key          string               `json:"key"`
	Name         string               `json:"name,omitempty"`
	Environments []ProjectEnvironment `json:"environments,omitempty"`
	Requests     []ProjectRequest     `json:"requests,omitempty"`
}

// IterationLog is the outcome of one pass over the selected requests.
type IterationLog struct {
	Index    int          `json:"index"`
	Executed []RequestLog `json:"executed"`
	Error    string       `json:"error,omitempty"`
}

// ProjectExecutionLog is the report of a project run.
type ProjectExecutionLog struct {
	ID         string         `json:"id"`
	Project    string         `json:"project"`
	Started    int64          `json:"started"`
	Ended      int64          `json:"ended"`
	Iterations []IterationLog `json:"iterations"`
}

// Result wraps what the worker returns to the controller.
type Result[T any] struct {
	Result    T                 `json:"result"`
	Variables map[string]string `json:"variables,omitempty"`
}

// ParseHeaders converts the "Name: value" text form into http.Header.
func ParseHeaders(text string) http.Header {
	h := http.Header{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h
}

// FormatHeaders converts http.Header into the "Name: value" text form.
func FormatHeaders(h http.Header) string {
	var b strings.Builder
	for name, values := range h {
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}

// Apply replaces {{name}} placeholders in the request with variable values.
func (r HTTPRequest) Apply(vars map[string]string) HTTPRequest {
	if len(vars) == 0 {
		return r
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	rep := strings.NewReplacer(pairs...)

	out := r
	out.URL = rep.Replace(r.URL)
	out.Headers = rep.Replace(r.Headers)
	if s, ok := r.Payload.(string); ok {
		out.Payload = rep.Replace(s)
	}
	return out
}
