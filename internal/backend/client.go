// Package backend calls the booking backend's REST API on behalf of the tool dispatcher.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/tools"
)

const (
	// DefaultBaseURL is the backend address used when none is configured.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 15 * time.Second
	// DefaultCancelReason is sent with cancellations requested through the assistant.
	DefaultCancelReason = "Customer request"

	maxResponseBytes = 1 << 20
)

// Opts holds configuration options for the backend client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL, e.g. "http://backend:8000".
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		o.BaseURL = u
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client is a booking backend API client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient creates a backend client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("backend.NewClient: client created", "base_url", base.String(), "timeout", cfg.Timeout)
	return &Client{baseURL: base, http: httpClient}, nil
}

// Register binds a handler for every known tool on d.
func (c *Client) Register(d *tools.Dispatcher) {
	d.Register(models.ToolCheckCustomer, c.CheckCustomer)
	d.Register(models.ToolCreateAppointment, c.CreateAppointment)
	d.Register(models.ToolCancelAppointment, c.CancelAppointment)
	d.Register(models.ToolGetCustomerAppointments, c.GetCustomerAppointments)
	d.Register(models.ToolCheckAvailability, c.CheckAvailability)
	d.Register(models.ToolListExperts, c.ListExperts)
	d.Register(models.ToolListServices, c.ListServices)
	d.Register(models.ToolCheckCampaigns, c.CheckCampaigns)
	d.Register(models.ToolSuggestAlternativeTimes, c.SuggestAlternativeTimes)
	d.Register(models.ToolCreateNewCustomer, c.CreateNewCustomer)
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type availabilityRequest struct {
	ServiceType string `json:"service_type"`
	DateTime    string `json:"date_time,omitempty"`
	Date        string `json:"date,omitempty"`
	ExpertName  string `json:"expert_name,omitempty"`
}

type createAppointmentRequest struct {
	CustomerPhone       string `json:"customer_phone"`
	ServiceType         string `json:"service_type"`
	AppointmentDateTime string `json:"appointment_datetime"`
	CustomerName        string `json:"customer_name,omitempty"`
	ExpertName          string `json:"expert_name,omitempty"`
}

type cancelAppointmentRequest struct {
	AppointmentCode string `json:"appointment_code"`
	Reason          string `json:"reason,omitempty"`
}

type createCustomerRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type campaignsRequest struct {
	CustomerPhone string `json:"customer_phone"`
}

type alternativesRequest struct {
	ServiceType string `json:"service_type"`
	Date        string `json:"date"`
	ExpertName  string `json:"expert_name,omitempty"`
}

// CheckCustomer looks a customer up by phone number.
func (c *Client) CheckCustomer(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.post(ctx, "/api/check_customer", phoneRequest{Phone: p.Phone})
}

// GetCustomerAppointments lists the active appointments of a customer.
func (c *Client) GetCustomerAppointments(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.post(ctx, "/api/get_customer_appointments", phoneRequest{Phone: p.Phone})
}

// CheckAvailability checks whether the requested slot is free.
func (c *Client) CheckAvailability(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.post(ctx, "/api/check_availability", availabilityRequest{
		ServiceType: p.ServiceType,
		DateTime:    p.DateTime,
		Date:        p.Date,
		ExpertName:  p.ExpertName,
	})
}

// CreateAppointment books the appointment. The customer name known from the
// session is forwarded so the backend can register a new customer.
func (c *Client) CreateAppointment(ctx context.Context, p models.ToolParams, sess *models.Session) (models.ToolResult, error) {
	req := createAppointmentRequest{
		CustomerPhone:       p.Phone,
		ServiceType:         p.ServiceType,
		AppointmentDateTime: p.DateTime,
		ExpertName:          p.ExpertName,
		CustomerName:        p.FullName,
	}
	if req.CustomerName == "" && sess != nil {
		req.CustomerName = sess.Context.CustomerName
	}
	return c.post(ctx, "/api/create_appointment", req)
}

// CancelAppointment cancels the appointment identified by its id or code.
func (c *Client) CancelAppointment(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	if p.AppointmentCode == "" {
		return models.Failure("appointment_code is required"), nil
	}
	return c.post(ctx, "/api/cancel_appointment", cancelAppointmentRequest{
		AppointmentCode: p.AppointmentCode,
		Reason:          DefaultCancelReason,
	})
}

// CreateNewCustomer registers a customer.
func (c *Client) CreateNewCustomer(ctx context.Context, p models.ToolParams, sess *models.Session) (models.ToolResult, error) {
	phone := p.Phone
	if phone == "" && sess != nil {
		phone = sess.Collected[models.SlotPhone]
	}
	if p.FullName == "" || phone == "" {
		return models.Failure("full_name and phone are required"), nil
	}
	return c.post(ctx, "/api/create_customer", createCustomerRequest{FullName: p.FullName, Phone: phone})
}

// CheckCampaigns lists the active campaigns.
func (c *Client) CheckCampaigns(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.post(ctx, "/api/check_campaigns", campaignsRequest{CustomerPhone: p.Phone})
}

// SuggestAlternativeTimes asks the backend for free slots near the requested date.
func (c *Client) SuggestAlternativeTimes(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.post(ctx, "/api/suggest_alternatives", alternativesRequest{
		ServiceType: p.ServiceType,
		Date:        p.Date,
		ExpertName:  p.ExpertName,
	})
}

// ListServices returns the service catalog.
func (c *Client) ListServices(ctx context.Context, _ models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	return c.get(ctx, "/api/list_services", nil)
}

// ListExperts returns the experts, filtered by service when one is given.
func (c *Client) ListExperts(ctx context.Context, p models.ToolParams, _ *models.Session) (models.ToolResult, error) {
	var q url.Values
	if p.ServiceType != "" {
		q = url.Values{"service_type": {p.ServiceType}}
	}
	return c.get(ctx, "/api/list_experts", q)
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) post(ctx context.Context, path string, body any) (models.ToolResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("failed to encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (models.ToolResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) (models.ToolResult, error) {
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("backend request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	slog.Debug("Client.do: backend responded", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	var result models.ToolResult
	decodeErr := json.Unmarshal(data, &result)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.ErrorText() != "" {
			result.Success = false
			return result, nil
		}
		return models.Failure(fmt.Sprintf("backend returned status %d for %s", resp.StatusCode, path)), nil
	}
	if decodeErr != nil {
		return models.ToolResult{}, fmt.Errorf("failed to decode %s response: %w", path, decodeErr)
	}
	return result, nil
}
