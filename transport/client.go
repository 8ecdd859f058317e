package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kendall-kelly/marketplace-orders/mapper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kendall-kelly/marketplace-orders/transport"

// envelope is the response shape of every order service endpoint
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient implements OrdersAPI and ReviewsAPI against the order service
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(h *HTTPClient) { h.token = token }
}

// NewHTTPClient creates a client for the API rooted at baseURL (for example
// "https://orders.example.com/api/v1")
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAll fetches every order visible in scope
func (c *HTTPClient) GetAll(ctx context.Context, scope Scope) ([]mapper.Record, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", string(scope))
	}
	var records []mapper.Record
	if err := c.do(ctx, "orders.get_all", http.MethodGet, "/orders", q, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetOrderByID fetches one order
func (c *HTTPClient) GetOrderByID(ctx context.Context, id string) (mapper.Record, error) {
	var record mapper.Record
	if err := c.do(ctx, "orders.get_by_id", http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateOrder sends a transition patch for one order
func (c *HTTPClient) UpdateOrder(ctx context.Context, id string, patch Patch) error {
	return c.do(ctx, "orders.update", http.MethodPatch, "/orders/"+url.PathEscape(id), nil, patch, nil)
}

// CreateReview submits a review of the seller of a completed order
func (c *HTTPClient) CreateReview(ctx context.Context, review Review) error {
	return c.do(ctx, "reviews.create", http.MethodPost, "/reviews", nil, review, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	decodeErr := dec.Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}

	dataDec := json.NewDecoder(bytes.NewReader(env.Data))
	dataDec.UseNumber()
	if err := dataDec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
