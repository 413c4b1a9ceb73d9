package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
)

const (
	DefaultAttemptTimeout = 25 * time.Second
	DefaultMaxTokens      = 1024

	// maxReplyBytes bounds how much of a provider body is read.
	maxReplyBytes = 1 << 20
)

// Endpoint is one chat-completions URL and the payload shapes to try against it.
type Endpoint struct {
	URL    string
	Shapes []Shape
}

// Hooks receive per-attempt observations. Nil funcs are skipped.
type Hooks struct {
	OnAttempt func(shape Shape, outcome string, duration float64)
}

// Options configures a Gateway.
type Options struct {
	APIKey         string
	DefaultModel   string
	Endpoints      []Endpoint
	AttemptTimeout time.Duration
	MaxTokens      int
	HTTPClient     *http.Client
	Hooks          Hooks
}

// Gateway is an OpenAI-compatible Provider that degrades through alternative
// endpoints and payload shapes until one answers. Total attempts never exceed
// endpoints × shapes.
type Gateway struct {
	apiKey         string
	defaultModel   string
	endpoints      []Endpoint
	attemptTimeout time.Duration
	maxTokens      int
	httpClient     *http.Client
	hooks          Hooks
	logger         log.Logger
}

// NewGateway creates a gateway from opts. A missing API key is allowed and
// reported as KindNoCredential on every Send.
func NewGateway(opts Options, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	client := opts.HTTPClient
	if client == nil {
		// per-attempt deadlines come from context, not the client
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	endpoints := make([]Endpoint, 0, len(opts.Endpoints))
	for _, ep := range opts.Endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			continue
		}
		shapes := ep.Shapes
		if len(shapes) == 0 {
			shapes = DefaultShapes
		}
		endpoints = append(endpoints, Endpoint{URL: ep.URL, Shapes: append([]Shape(nil), shapes...)})
	}

	return &Gateway{
		apiKey:         strings.TrimSpace(opts.APIKey),
		defaultModel:   opts.DefaultModel,
		endpoints:      endpoints,
		attemptTimeout: timeout,
		maxTokens:      maxTokens,
		httpClient:     client,
		hooks:          opts.Hooks,
		logger:         logger,
	}
}

// Send delivers conv to the first endpoint/shape pair that answers with text.
// model overrides the configured default when non-empty.
//
// An HTTP failure moves on to the next shape, a transport failure skips the
// rest of that endpoint's shapes, and an undecodable or textless 2xx reply
// is returned as-is since a different layout will not fix it.
func (g *Gateway) Send(ctx context.Context, conv Conversation, model string) (*Reply, error) {
	if g.apiKey == "" {
		return nil, NoCredential()
	}
	if model == "" {
		model = g.defaultModel
	}
	if len(g.endpoints) == 0 {
		return nil, &Error{Kind: KindTransport, Detail: "no endpoints configured"}
	}

	L := g.logger.With("model", model)

	var (
		lastErr  *Error
		attempts int
	)

endpoints:
	for _, ep := range g.endpoints {
		for _, shape := range ep.Shapes {
			if err := ctx.Err(); err != nil {
				return nil, &Error{Kind: KindTransport, Detail: "request abandoned: " + err.Error(), Err: err}
			}

			attempts++
			start := time.Now()
			text, raw, err := g.attempt(ctx, ep.URL, shape, conv, model)
			if err != nil && err.Body == "" {
				err.Body = raw
			}
			g.observe(shape, err, time.Since(start).Seconds())

			if err == nil {
				if attempts > 1 {
					L.Info(ctx, "llm fallback succeeded", "endpoint", ep.URL, "shape", shape, "attempts", attempts)
				}
				return &Reply{
					Text:     text,
					Model:    model,
					Endpoint: ep.URL,
					Shape:    shape,
					Attempts: attempts,
					Raw:      raw,
				}, nil
			}

			lastErr = err
			L.Warn(ctx, "llm attempt failed",
				"endpoint", ep.URL,
				"shape", shape,
				"kind", err.Kind,
				"code", err.Code,
				"attempt", attempts,
			)

			switch err.Kind {
			case KindHTTP:
				continue
			case KindTransport:
				continue endpoints
			default:
				break endpoints
			}
		}
	}

	if lastErr == nil {
		return nil, &Error{Kind: KindTransport, Detail: "no attempts made"}
	}
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, url string, shape Shape, conv Conversation, model string) (string, string, *Error) {
	body, err := json.Marshal(shape.payload(conv, model, g.maxTokens))
	if err != nil {
		return "", "", &Error{Kind: KindMalformed, Detail: "marshal request", Err: err}
	}

	actx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", &Error{Kind: KindTransport, Detail: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req) //nolint:gosec // G704: endpoint URLs come from trusted config
	if err != nil {
		return "", "", &Error{Kind: KindTransport, Detail: transportDetail(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", "", &Error{Kind: KindTransport, Detail: "read reply: " + transportDetail(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(raw)
		if msg := errorMessageBytes(raw); msg != "" {
			detail = msg
		}
		return "", snippet(string(raw)), &Error{Kind: KindHTTP, Code: resp.StatusCode, Detail: snippet(detail)}
	}

	if isUnknownEndpoint(raw) {
		return "", snippet(string(raw)), &Error{
			Kind:   KindHTTP,
			Code:   http.StatusNotFound,
			Detail: "endpoint reported unknown route: " + snippet(string(raw)),
		}
	}

	text, xerr := ExtractText(raw)
	if xerr != nil {
		return "", snippet(string(raw)), xerr
	}
	return text, string(raw), nil
}

func (g *Gateway) observe(shape Shape, err *Error, seconds float64) {
	if g.hooks.OnAttempt == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(err.Kind)
		if err.Kind == KindHTTP {
			outcome = fmt.Sprintf("http_%d", err.Code)
		}
	}
	g.hooks.OnAttempt(shape, outcome, seconds)
}

func transportDetail(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "attempt timed out"
	}
	return err.Error()
}
