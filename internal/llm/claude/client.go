// Package claude is an llm.Provider backed by the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/citycare/internal/llm"
)

const defaultMaxTokens = 1024

// Client implements llm.Provider for the Claude API.
type Client struct {
	apiKey    string
	model     string
	maxTokens int64
	timeout   time.Duration
	sdk       anthropic.Client
}

// Options configures a Client. BaseURL and HTTPClient are optional.
type Options struct {
	APIKey         string
	Model          string
	BaseURL        string
	MaxTokens      int
	AttemptTimeout time.Duration
	HTTPClient     *http.Client
}

// New creates a Claude client. Retries are left to the caller.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(hc),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = llm.DefaultAttemptTimeout
	}

	return &Client{
		apiKey:    strings.TrimSpace(opts.APIKey),
		model:     opts.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		sdk:       anthropic.NewClient(reqOpts...),
	}
}

// Send sends conv to the Messages API. System turns go in the system field.
func (c *Client) Send(ctx context.Context, conv llm.Conversation, model string) (*llm.Reply, error) {
	if c.apiKey == "" {
		return nil, llm.NoCredential()
	}
	if model == "" {
		model = c.model
	}

	system, msgs := toSDKMessages(conv)
	if len(msgs) == 0 {
		return nil, &llm.Error{Kind: llm.KindMalformed, Detail: "conversation has no user turns"}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.sdk.Messages.New(actx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  msgs,
	})
	if err != nil {
		return nil, fromSDKError(err)
	}

	text := fromSDKResponse(msg)
	if strings.TrimSpace(text) == "" {
		return nil, &llm.Error{Kind: llm.KindUnexpectedShape, Detail: "reply has no text blocks", Body: msg.RawJSON()}
	}

	return &llm.Reply{
		Text:     text,
		Model:    string(msg.Model),
		Endpoint: "anthropic",
		Shape:    llm.ShapeMessages,
		Attempts: 1,
		Raw:      msg.RawJSON(),
	}, nil
}

// toSDKMessages splits system turns out and maps the rest to SDK params.
func toSDKMessages(conv llm.Conversation) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system []anthropic.TextBlockParam
		msgs   []anthropic.MessageParam
	)
	for _, t := range conv.Turns() {
		switch t.Role {
		case llm.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: t.Text})
		case llm.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	return system, msgs
}

// fromSDKResponse concatenates the text blocks of a reply.
func fromSDKResponse(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func fromSDKError(err error) *llm.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.Error{Kind: llm.KindHTTP, Code: apiErr.StatusCode, Detail: apiErr.Error(), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Kind: llm.KindTransport, Detail: "attempt timed out", Err: err}
	}
	return &llm.Error{Kind: llm.KindTransport, Detail: err.Error(), Err: err}
}
