// Package featureserver reads and writes records on a feature-layer REST
// endpoint. Reads auto-page; writes retry with a fixed policy and either
// return an exhaustion sentinel or terminate the process.
package featureserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/route-planner/internal/resilience"
)

// DefaultPageSize is the reference read window.
const DefaultPageSize = 2000

// Client is the feature-data interface consumed by the route planner.
type Client interface {
	// GetRecords returns every record matching q, paging until an empty page.
	GetRecords(ctx context.Context, q Query) ([]Record, error)

	// WriteRecords performs one logical write. payload is []Record for
	// insert/update, a where clause string for delete, and a Calculation
	// for calculate.
	WriteRecords(ctx context.Context, op Op, payload any, opts WriteOptions) (*WriteResult, error)
}

// Query filters a read.
type Query struct {
	Where          string
	OutFields      []string
	Distinct       bool
	ReturnGeometry bool
	OrderBy        string
}

// Op is a write operation.
type Op string

const (
	OpInsert    Op = "insert"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpCalculate Op = "calculate"
)

// endpoint maps an Op to its REST path segment.
func (o Op) endpoint() (string, bool) {
	switch o {
	case OpInsert:
		return "addFeatures", true
	case OpUpdate:
		return "updateFeatures", true
	case OpDelete:
		return "deleteFeatures", true
	case OpCalculate:
		return "calculate", true
	default:
		return "", false
	}
}

// Calculation sets Field to SQLExpression on every record matching Where.
type Calculation struct {
	Where         string
	Field         string
	SQLExpression string
}

// WriteOptions controls exhaustion handling for a single write.
type WriteOptions struct {
	// Fatal terminates the process once retries are exhausted.
	Fatal bool
}

// EditResult is the per-record outcome of an edit.
type EditResult struct {
	ObjectID int64  `json:"objectId"`
	Success  bool   `json:"success"`
	Error    *Error `json:"error,omitempty"`
}

// WriteResult is the decoded response of a write.
type WriteResult struct {
	Success bool
	Results []EditResult
	Updated int
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithToken sets the token query parameter sent with every request.
func WithToken(token string) Option {
	return func(c *client) {
		c.token = token
	}
}

// WithPageSize sets the read window.
func WithPageSize(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithWritePolicy replaces the write retry policy.
func WithWritePolicy(p resilience.Policy) Option {
	return func(c *client) {
		c.writePolicy = p
	}
}

// WithReadPolicy replaces the per-page read retry policy.
func WithReadPolicy(p resilience.Policy) Option {
	return func(c *client) {
		c.readPolicy = p
	}
}

// WithExit replaces the function called on fatal exhaustion.
func WithExit(exit resilience.ExitFunc) Option {
	return func(c *client) {
		c.exit = exit
	}
}

type client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	pageSize    int
	limiter     *rate.Limiter
	writePolicy resilience.Policy
	readPolicy  resilience.Policy
	exit        resilience.ExitFunc
}

// NewClient creates a Client for the layer at baseURL
// (e.g. https://host/arcgis/rest/services/Leads/FeatureServer/0).
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		pageSize:    DefaultPageSize,
		limiter:     rate.NewLimiter(10, 10),
		writePolicy: resilience.FixedPolicy(3, 60*time.Second),
		readPolicy:  resilience.ExponentialPolicy(3, time.Second, 30*time.Second),
		exit:        resilience.DefaultExit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.writePolicy.OnRetry == nil {
		c.writePolicy.OnRetry = resilience.RetryLogger("featureserver", "write")
	}
	if c.readPolicy.OnRetry == nil {
		c.readPolicy.OnRetry = resilience.RetryLogger("featureserver", "query")
	}
	return c
}
