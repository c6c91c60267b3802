package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProxyConfig routes outbound traffic through an HTTP proxy.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
	// System applies the proxy from the HTTP_PROXY family of variables when URL is empty.
	System bool
}

// Config tunes the outbound client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64
	// StoreRetries is the retry budget for store API calls. User requests are never retried.
	StoreRetries int
	Proxy        ProxyConfig
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      90 * time.Second,
		UserAgent:    "api-client-shell/1.0",
		StoreRetries: 3,
	}
}

// Client executes outbound HTTP on behalf of the worker.
type Client struct {
	follow   *resty.Client
	noFollow *resty.Client
	store    *retryablehttp.Client
	limiter  *rate.Limiter
	breakers *resilience.Set
	logger   *logging.Logger
}

// NewClient builds the outbound client. An invalid proxy URL is an error.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	// Store calls go through a retrying client
	storeClient := retryablehttp.NewClient()
	storeClient.RetryMax = cfg.StoreRetries
	storeClient.RetryWaitMin = 500 * time.Millisecond
	storeClient.RetryWaitMax = 10 * time.Second
	storeClient.Logger = nil

	proxyURL, err := cfg.Proxy.parse()
	if err != nil {
		return nil, err
	}
	if t, ok := storeClient.HTTPClient.Transport.(*http.Transport); ok {
		switch {
		case proxyURL != nil:
			t.Proxy = http.ProxyURL(proxyURL)
		case cfg.Proxy.System:
			t.Proxy = http.ProxyFromEnvironment
		default:
			t.Proxy = nil
		}
	}

	build := func(follow bool) *resty.Client {
		c := resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", cfg.UserAgent).
			SetTransport(storeClient.HTTPClient.Transport)
		if !follow {
			c.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}))
		}
		return c
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	breakers := resilience.NewSet("http", resilience.Settings{
		HalfOpenCalls: 2,
		Window:        time.Minute,
		Cooldown:      30 * time.Second,
		Trip: func(c resilience.Counts) bool {
			// hosts vary a lot in reliability, be lenient
			return c.ConsecutiveFailures >= 10 ||
				(c.Requests >= 20 && float64(c.TotalFailures)/float64(c.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Client{
		follow:   build(true),
		noFollow: build(false),
		store:    storeClient,
		limiter:  limiter,
		breakers: breakers,
		logger:   logger,
	}, nil
}

func (p ProxyConfig) parse() (*url.URL, error) {
	if p.URL == "" {
		return nil, nil
	}
	raw := p.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", p.URL, err)
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// Send executes one request and returns its log. Transport failures are returned
// as errors; any HTTP status is a successful execution.
func (c *Client) Send(ctx context.Context, req HTTPRequest, cfg RequestConfig) (RequestLog, error) {
	target, err := url.Parse(req.URL)
	if err != nil || target.Host == "" {
		return RequestLog{}, fmt.Errorf("Invalid request URL: %s", req.URL)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodePayload(req.Payload)
	if err != nil {
		return RequestLog{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return RequestLog{}, fmt.Errorf("rate limit error: %w", err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout*float64(time.Millisecond)))
		defer cancel()
	}

	client := c.follow
	if !cfg.follow() {
		client = c.noFollow
	}

	sent := &SentRequest{HTTPRequest: req, StartTime: time.Now().UnixMilli()}
	sent.Method = method

	resp, err := resilience.Run(ctx, c.breakers.For(target.Host), func(ctx context.Context) (*resty.Response, error) {
		r := client.R().SetContext(ctx).SetHeaderMultiValues(ParseHeaders(req.Headers))
		if body != nil {
			r.SetBody(body)
		}
		return r.Execute(method, req.URL)
	})
	sent.EndTime = time.Now().UnixMilli()
	if err != nil {
		c.logger.Debug("Request failed", zap.String("url", req.URL), zap.Error(err))
		return RequestLog{Request: sent, Error: err.Error(), Size: RequestSize{Request: len(body)}}, err
	}

	response := toResponse(resp)
	return RequestLog{
		Request:  sent,
		Response: response,
		Size:     RequestSize{Request: len(body), Response: len(resp.Body())},
	}, nil
}

// FetchProject reads a project document from the store.
func (c *Client) FetchProject(ctx context.Context, storeURI, token, pid string) (*Project, error) {
	endpoint, err := url.JoinPath(storeURI, "files", pid)
	if err != nil {
		return nil, fmt.Errorf("invalid store URI: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?alt=media", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.store.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Unable to read the project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Unable to read the project. The store responded with %d.", resp.StatusCode)
	}

	var project Project
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&project); err != nil {
		return nil, fmt.Errorf("Invalid project data: %w", err)
	}
	return &project, nil
}

// BreakerStates exposes per-host breaker states.
func (c *Client) BreakerStates() map[string]resilience.State {
	return c.breakers.States()
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		b, err := sonic.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unable to encode payload: %w", err)
		}
		return b, nil
	}
}

func toResponse(resp *resty.Response) *Response {
	body := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" && len(body) > 0 {
		contentType = mimetype.Detect(body).String()
	}
	return &Response{
		Status:      resp.StatusCode(),
		StatusText:  http.StatusText(resp.StatusCode()),
		Headers:     FormatHeaders(resp.Header()),
		ContentType: contentType,
		Payload:     string(body),
		Timings:     Timings{Total: float64(resp.Time().Microseconds()) / 1000},
	}
}
