package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/termie/internal/infrastructure/resilience"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "qwen2.5:0.5b"
	DefaultTimeout = 10 * time.Second

	generatePath = "/api/generate"
)

const promptTemplate = `Classify input as either 'command' (UNIX shell) or 'natural' (normal natural human language). Respond only with 'command' or 'natural'. Examples:

Input: "ls -la"
Output: command

Input: "echo hello"
Output: command

Input: "Hello, how are you?"
Output: natural

Now classify this input:
Input: "%s"`

// Classifier decides whether a line is a shell command.
type Classifier interface {
	Classify(ctx context.Context, line string) (bool, error)
}

// Answerer replies to a natural-language line.
type Answerer interface {
	Answer(ctx context.Context, line string) (string, error)
}

// StatusError is returned when the model server answers with a non-2xx code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model server returned %d: %s", e.Code, e.Body)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Options configures a Client.
type Options struct {
	URL     string
	Model   string
	Timeout time.Duration

	// RPS caps outgoing calls per second; zero means unlimited.
	RPS float64

	// Retries is the number of transport-level retries per call.
	Retries int

	Logger *zap.Logger
}

// Client talks to an Ollama-compatible model server.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	model   string
	logger  *zap.Logger
}

// NewClient creates a client with retrying transport, rate limiting, and a
// circuit breaker.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.Logger = retryLogger{opts.Logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "termie/1.0").
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), max(1, int(opts.RPS)))
	}

	logger := opts.Logger
	breaker := resilience.New("classifier", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Classifier breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		model:   opts.Model,
		logger:  opts.Logger,
	}
}

// Prompt builds the classification prompt for line.
func Prompt(line string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(line))
}

// IsCommand interprets a model reply.
func IsCommand(response string) bool {
	return strings.Contains(strings.ToLower(response), "command")
}

// Classify implements Classifier.
func (c *Client) Classify(ctx context.Context, line string) (bool, error) {
	reply, err := c.generate(ctx, Prompt(line))
	if err != nil {
		return false, err
	}
	return IsCommand(reply), nil
}

// Answer implements Answerer by sending line to the model as is.
func (c *Client) Answer(ctx context.Context, line string) (string, error) {
	reply, err := c.generate(ctx, strings.TrimSpace(line))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	return resilience.Do(c.breaker, func() (string, error) {
		var out generateResponse
		resp, err := c.resty.R().
			SetContext(ctx).
			SetBody(generateRequest{Model: c.model, Prompt: prompt, Stream: false}).
			SetResult(&out).
			Post(generatePath)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		if resp.IsError() {
			return "", &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
		}
		if out.Response == "" && !out.Done {
			return "", fmt.Errorf("generate: unexpected reply %q", truncate(resp.String(), 200))
		}
		return out.Response, nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
