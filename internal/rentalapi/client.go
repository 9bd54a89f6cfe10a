// Package rentalapi is the HTTP client for the external car rental backend.
package rentalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/carhire/internal/domain"
)

const (
	carListPath     = "/car/car_list/"
	locationsPath   = "/master/operating_locations/"
	quotePath       = "/car/calculate-booking-amount/"
	discountsPath   = "/car/discounts/"
	facetUsedFor    = "filter"
	maxErrorBodyLen = 4 << 10
)

// DefaultTimeout bounds each backend call unless WithTimeout says otherwise.
const DefaultTimeout = 10 * time.Second

// Client talks to the rental backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New constructs a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.RentalAPI = (*Client)(nil)

// envelope is the backend's common response shape.
type envelope struct {
	Status   bool             `json:"status"`
	Message  string           `json:"message"`
	Data     json.RawMessage  `json:"data"`
	PageData *domain.PageData `json:"page_data"`
	Code     string           `json:"code"`
}

// ListCars fetches one page of cars. params must already carry paging,
// filter and language parameters.
func (c *Client) ListCars(ctx context.Context, params url.Values) (*domain.CarPage, error) {
	env, err := c.do(ctx, http.MethodGet, carListPath, params, nil)
	if err != nil {
		return nil, err
	}

	var cars []domain.Car
	if err := decodeData(env, &cars); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "list cars: decode", err)
	}
	if cars == nil {
		cars = []domain.Car{}
	}

	page := &domain.CarPage{Cars: cars}
	if env.PageData != nil {
		page.PageData = *env.PageData
	}
	return page, nil
}

// GetCar fetches a single car by id.
func (c *Client) GetCar(ctx context.Context, id int64, language string) (*domain.Car, error) {
	q := url.Values{}
	q.Set("car_id", strconv.FormatInt(id, 10))
	q.Set("selected_language", language)

	env, err := c.do(ctx, http.MethodGet, carListPath, q, nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, domain.NewAppError(domain.CodeNotFound, "car not found", nil)
	}

	var car domain.Car
	if err := decodeData(env, &car); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "get car: decode", err)
	}
	return &car, nil
}

// ListLocations fetches the operating locations for a language.
func (c *Client) ListLocations(ctx context.Context, language string) ([]domain.Location, error) {
	q := url.Values{}
	q.Set("selected_language", language)

	env, err := c.do(ctx, http.MethodGet, locationsPath, q, nil)
	if err != nil {
		return nil, err
	}

	var locs []domain.Location
	if err := decodeData(env, &locs); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "list locations: decode", err)
	}
	if locs == nil {
		locs = []domain.Location{}
	}
	return locs, nil
}

// ListFacet fetches a facet vocabulary (car_type, body_type, fuel_type, transmission).
func (c *Client) ListFacet(ctx context.Context, kind, language string) ([]domain.FacetOption, error) {
	if !domain.IsFacetKind(kind) {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unknown facet %q", kind), nil)
	}
	q := url.Values{}
	q.Set("used_for", facetUsedFor)
	q.Set("selected_language", language)

	env, err := c.do(ctx, http.MethodGet, "/car/"+kind+"/", q, nil)
	if err != nil {
		return nil, err
	}

	var opts []domain.FacetOption
	if err := decodeData(env, &opts); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "list facet: decode", err)
	}
	if opts == nil {
		opts = []domain.FacetOption{}
	}
	return opts, nil
}

// CalculateQuote asks the backend to price a booking. A "not available"
// answer is returned as domain.ErrCarNotAvailable.
func (c *Client) CalculateQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	env, err := c.do(ctx, http.MethodPost, quotePath, nil, req)
	if err != nil {
		return nil, err
	}

	var q domain.Quote
	if err := decodeData(env, &q); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "calculate quote: decode", err)
	}
	return &q, nil
}

// GetDiscountOffer returns the promotional offer text for a car, or "" when
// there is none.
func (c *Client) GetDiscountOffer(ctx context.Context, carID int64) (string, error) {
	env, err := c.do(ctx, http.MethodGet, discountsPath+strconv.FormatInt(carID, 10), nil, nil)
	if err != nil {
		return "", err
	}

	var payload struct {
		Offer string `json:"offer"`
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return "", nil
	}
	if err := decodeData(env, &payload); err != nil {
		return "", domain.NewAppError(domain.CodeUpstream, "get discount: decode", err)
	}
	return payload.Offer, nil
}

// do executes one request and returns the decoded envelope. Transport errors,
// non-2xx statuses and status=false envelopes become domain errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*envelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeInternal, "encode request body", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "rental backend call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 || (decodeErr == nil && !env.Status) {
		if decodeErr == nil && isNotAvailable(env.Data) {
			return nil, domain.ErrCarNotAvailable
		}
		return nil, upstreamError(method, path, resp.StatusCode, raw, env.Message)
	}
	if decodeErr != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "decode response envelope", decodeErr)
	}
	return &env, nil
}

func decodeData(env *envelope, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func isNotAvailable(data json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return false
	}
	return s == domain.NotAvailableSignal
}

func upstreamError(method, path string, status int, raw []byte, message string) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		if len(raw) > maxErrorBodyLen {
			raw = raw[:maxErrorBodyLen]
		}
		msg = strings.TrimSpace(string(raw))
	}
	code := domain.CodeUpstream
	if status == http.StatusNotFound {
		code = domain.CodeNotFound
	}
	return domain.NewAppError(code, fmt.Sprintf("%s %s: http %d", method, path, status), errors.New(msg))
}
