// Package autoconfig proposes Hint Overlays with an OpenAI-compatible chat
// model. A Configurator implements hints.AutoConfigurator.
package autoconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/hints"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2048
	DefaultMaxTries    = 3
)

// ErrMalformedReply is returned when the model's reply holds no usable overlay.
var ErrMalformedReply = errors.New("autoconfig: malformed model reply")

// Config configures a Configurator. Zero fields take the defaults.
type Config struct {
	APIKey        string
	BaseURL       string // for proxies and compatible servers
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxTries      uint
	RetryInterval time.Duration // initial backoff interval
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Configurator asks a chat model for an overlay given a sample of a root.
type Configurator struct {
	completions   chatCompletions
	model         string
	temperature   float64
	maxTokens     int
	maxTries      uint
	retryInterval time.Duration
	logger        *slog.Logger
}

var _ hints.AutoConfigurator = (*Configurator)(nil)

// New returns a Configurator backed by the OpenAI API.
func New(cfg Config) (*Configurator, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("autoconfig: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	// Retries are ours; the client would otherwise retry underneath them.
	opts = append(opts, option.WithMaxRetries(0))
	client := openai.NewClient(opts...)
	return newConfigurator(&client.Chat.Completions, cfg), nil
}

func newConfigurator(c chatCompletions, cfg Config) *Configurator {
	out := &Configurator{
		completions:   c,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		maxTries:      cfg.MaxTries,
		retryInterval: cfg.RetryInterval,
		logger:        cfg.Logger,
	}
	if out.model == "" {
		out.model = DefaultModel
	}
	if out.temperature == 0 {
		out.temperature = DefaultTemperature
	}
	if out.maxTokens <= 0 {
		out.maxTokens = DefaultMaxTokens
	}
	if out.maxTries == 0 {
		out.maxTries = DefaultMaxTries
	}
	if out.logger == nil {
		out.logger = slog.Default()
	}
	return out
}

// Configure implements hints.AutoConfigurator. Transient API failures are
// retried with exponential backoff; malformed replies are not.
func (c *Configurator) Configure(ctx context.Context, sample autotool.Sample) (hints.Response, error) {
	params, err := c.params(sample)
	if err != nil {
		return hints.Response{}, err
	}
	b := backoff.NewExponentialBackOff()
	if c.retryInterval > 0 {
		b.InitialInterval = c.retryInterval
	}
	attempt := 0
	return backoff.Retry(ctx, func() (hints.Response, error) {
		attempt++
		completion, err := c.completions.New(ctx, params)
		if err != nil {
			if !retryable(err) {
				return hints.Response{}, backoff.Permanent(err)
			}
			c.logger.DebugContext(ctx, "auto overlay request failed", "root", sample.Root, "attempt", attempt, "error", err)
			return hints.Response{}, err
		}
		if len(completion.Choices) == 0 {
			return hints.Response{}, backoff.Permanent(fmt.Errorf("%w: no choices", ErrMalformedReply))
		}
		resp, err := ParseReply(completion.Choices[0].Message.Content)
		if err != nil {
			return hints.Response{}, backoff.Permanent(err)
		}
		return resp, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

func (c *Configurator) params(sample autotool.Sample) (openai.ChatCompletionNewParams, error) {
	schema, err := hints.Schema()
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	return openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		Temperature:         openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt + string(schema)),
			openai.UserMessage(string(data)),
		},
	}, nil
}

const systemPrompt = `You configure which operations of a software library are exposed as tools to an AI agent.
You receive the library root, a sample of operation names and a sample of owning types.
Reply with one JSON object {"confidence": <0..1>, "overlay": <hint document>}.
Boost operations an agent would commonly need, penalize internal or low-level ones, and list
patterns for operations that destroy data. Use a low confidence when the library is unfamiliar.
The hint document must match this JSON Schema:
`

// ParseReply extracts {confidence, overlay} from a model reply. Text around
// the outermost JSON object is ignored; the overlay must be a valid hint
// document.
func ParseReply(content string) (hints.Response, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return hints.Response{}, fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}
	var reply struct {
		Confidence float64         `json:"confidence"`
		Overlay    json.RawMessage `json:"overlay"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return hints.Response{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if len(reply.Overlay) == 0 {
		return hints.Response{}, fmt.Errorf("%w: missing overlay", ErrMalformedReply)
	}
	h, err := hints.ParseJSON(reply.Overlay)
	if err != nil {
		return hints.Response{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return hints.Response{Confidence: min(max(reply.Confidence, 0), 1), Hints: h}, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
