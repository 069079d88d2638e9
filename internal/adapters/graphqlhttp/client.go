package graphqlhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"confetti/internal/domain"
)

// DefaultEndpoint is the public Confetti GraphQL server.
const DefaultEndpoint = "https://confetti-app.dev/graphql"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

var tracer = otel.Tracer("confetti/graphqlhttp")

// TokenSource returns the bearer token to send, or "" for anonymous requests.
type TokenSource func(ctx context.Context) (string, error)

// Config configures the HTTP transport.
type Config struct {
	// Endpoint is the GraphQL server URL. Defaults to DefaultEndpoint.
	Endpoint string
	// Conference is sent as the "conference" query parameter on every request.
	Conference string
	Token      TokenSource
}

type httpTransport struct {
	client   *http.Client
	endpoint string
	token    TokenSource
}

type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// NewHTTPTransport returns a transport that POSTs operations to the configured endpoint.
func NewHTTPTransport(client *http.Client, cfg Config) (domain.Transport, error) {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse graphql endpoint: %w", err)
	}
	if cfg.Conference != "" {
		q := u.Query()
		q.Set("conference", cfg.Conference)
		u.RawQuery = q.Encode()
	}
	return &httpTransport{client: client, endpoint: u.String(), token: cfg.Token}, nil
}

func (t *httpTransport) Execute(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	ctx, span := tracer.Start(ctx, "graphql "+op.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graphql.operation.name", op.Name),
			attribute.Bool("graphql.operation.mutation", op.Mutation),
		),
	)
	defer span.End()

	resp, err := t.execute(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("graphql.errors", len(resp.Errors)))
	return resp, nil
}

func (t *httpTransport) execute(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	fail := func(status int, err error) error {
		return &domain.TransportError{Operation: op.Name, StatusCode: status, Err: err}
	}

	body, err := json.Marshal(requestBody{Query: op.Document, OperationName: op.Name, Variables: op.Variables})
	if err != nil {
		return nil, fail(0, fmt.Errorf("failed to encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	if t.token != nil {
		token, err := t.token(ctx)
		if err != nil {
			return nil, fail(0, fmt.Errorf("failed to get auth token: %w", err))
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fail(0, fmt.Errorf("failed to reach graphql server: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fail(resp.StatusCode, errors.New(strings.TrimSpace(snippet(raw))))
	}

	var out domain.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if !out.HasData() && len(out.Errors) == 0 {
		return nil, fail(resp.StatusCode, errors.New("response has neither data nor errors"))
	}
	return &out, nil
}

// snippet shortens an error body for inclusion in an error message.
func snippet(b []byte) string {
	const limit = 256
	if len(b) == 0 {
		return "empty response body"
	}
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
