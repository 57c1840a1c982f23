// Package anem provides the retried gateway to the benefits
// administration service.
package anem

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/engine/metrics"
)

// API is the gateway surface consumed by the workflow stages. Errors
// returned by every method are always *domain.APIError.
type API interface {
	ValidateCandidate(ctx context.Context, wassitNumber, identityDoc string) (*ValidationResult, error)
	GetPreInscription(ctx context.Context, preInscriptionID string) (*PreInscriptionInfo, error)
	GetAvailableDates(ctx context.Context, structureID, preInscriptionID string) (*AvailableDates, error)
	CreateRendezVous(ctx context.Context, req BookingRequest) (*BookingResult, error)
	DownloadDocument(ctx context.Context, kind DocumentKind, preInscriptionID string) (string, error)
	CheckSiteAvailability(ctx context.Context) (bool, error)
}

// Config holds gateway settings. A Client never mutates its Config;
// swapping settings at runtime means constructing a fresh Client, which
// also resets the backoff seeds.
type Config struct {
	BaseURL          string
	SiteCheckURL     string
	MaxRetries       int
	RequestTimeout   time.Duration
	SiteCheckTimeout time.Duration

	InitialBackoffGeneral time.Duration
	InitialBackoff429     time.Duration
	MaxBackoffDelay       time.Duration
}

// DefaultConfig provides sensible defaults.
func DefaultConfig(baseURL, siteCheckURL string) Config {
	return Config{
		BaseURL:               baseURL,
		SiteCheckURL:          siteCheckURL,
		MaxRetries:            3,
		RequestTimeout:        15 * time.Second,
		SiteCheckTimeout:      5 * time.Second,
		InitialBackoffGeneral: 2 * time.Second,
		InitialBackoff429:     10 * time.Second,
		MaxBackoffDelay:       60 * time.Second,
	}
}

// Client issues retried calls against the upstream service.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient creates a gateway client.
//
// Certificate verification is disabled: the upstream serves a certificate
// chain that does not verify against public roots. This is a known trust
// trade-off inherited from the service, not an oversight.
func NewClient(cfg Config) *Client {
	if cfg.MaxBackoffDelay == 0 {
		cfg.MaxBackoffDelay = 60 * time.Second
	}
	if cfg.SiteCheckTimeout == 0 {
		cfg.SiteCheckTimeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.With("component", "anem"),
	}
}

func (c *Client) ValidateCandidate(ctx context.Context, wassitNumber, identityDoc string) (*ValidationResult, error) {
	params := url.Values{}
	params.Set("wassitNumber", wassitNumber)
	params.Set("identityDocNumber", identityDoc)

	body, apiErr := c.invoke(ctx, "validate", http.MethodGet, c.endpoint("validateCandidate/query"), params, nil, invokeOpts{})
	if apiErr != nil {
		return nil, apiErr
	}
	var res ValidationResult
	if err := c.decode("validate", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetPreInscription(ctx context.Context, preInscriptionID string) (*PreInscriptionInfo, error) {
	params := url.Values{}
	params.Set("Id", preInscriptionID)

	body, apiErr := c.invoke(ctx, "get_info", http.MethodGet, c.endpoint("PreInscription/GetPreInscription"), params, nil, invokeOpts{})
	if apiErr != nil {
		return nil, apiErr
	}
	var res PreInscriptionInfo
	if err := c.decode("get_info", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetAvailableDates(ctx context.Context, structureID, preInscriptionID string) (*AvailableDates, error) {
	params := url.Values{}
	params.Set("StructureId", structureID)
	params.Set("PreInscriptionId", preInscriptionID)

	body, apiErr := c.invoke(ctx, "get_dates", http.MethodGet, c.endpoint("RendezVous/GetAvailableDates"), params, nil, invokeOpts{})
	if apiErr != nil {
		return nil, apiErr
	}
	var res AvailableDates
	if err := c.decode("get_dates", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateRendezVous books an appointment. An explicit ineligibility answer
// is a successful negative result, even when delivered with an error
// status or as recognizable non-JSON text.
func (c *Client) CreateRendezVous(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	payload := map[string]string{
		"preInscriptionId": req.PreInscriptionID,
		"ccp":              req.CCP,
		"nomCcp":           req.NomFr,
		"prenomCcp":        req.PrenomFr,
		"rdvdate":          req.Date,
		"demandeurId":      req.DemandeurID,
	}
	hdr := http.Header{}
	hdr.Set("g-recaptcha-response", "")

	body, apiErr := c.invoke(ctx, "book", http.MethodPost, c.endpoint("RendezVous/Create"), nil, payload, invokeOpts{interpretIneligible: true, extraHeaders: hdr})
	if apiErr != nil {
		return nil, apiErr
	}

	var res BookingResult
	if err := json.Unmarshal(body, &res); err == nil {
		return &res, nil
	}

	// Non-JSON body. Best effort: a recognizable ineligibility marker in
	// the raw text still counts as a valid negative answer.
	text := string(body)
	if containsIneligibleMarker(text) {
		no := false
		return &BookingResult{
			Eligible: &no,
			Message:  "Booking refused: the applicant does not meet the eligibility conditions.",
			RawText:  text,
		}, nil
	}
	metrics.APIErrorsTotal.WithLabelValues("book", string(domain.ErrKindMalformedResponse)).Inc()
	return nil, &domain.APIError{Kind: domain.ErrKindMalformedResponse, Message: trimForLog(text)}
}

// DownloadDocument fetches one confirmation document and returns its
// base64-encoded content.
func (c *Client) DownloadDocument(ctx context.Context, kind DocumentKind, preInscriptionID string) (string, error) {
	params := url.Values{}
	params.Set("PreInscriptionId", preInscriptionID)

	body, apiErr := c.invoke(ctx, "download", http.MethodGet, c.endpoint("download/"+string(kind)), params, nil, invokeOpts{})
	if apiErr != nil {
		return "", apiErr
	}

	var env documentPayload
	if err := json.Unmarshal(body, &env); err == nil && env.Base64PDF != "" {
		return env.Base64PDF, nil
	}
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil && bare != "" {
		return bare, nil
	}
	metrics.APIErrorsTotal.WithLabelValues("download", string(domain.ErrKindMalformedResponse)).Inc()
	return "", &domain.APIError{Kind: domain.ErrKindMalformedResponse, Message: "document response is neither base64 text nor an envelope"}
}

// CheckSiteAvailability probes the upstream with a single attempt and a
// short fixed timeout. The error is diagnostic only.
func (c *Client) CheckSiteAvailability(ctx context.Context) (bool, error) {
	_, apiErr := c.invoke(ctx, "site_check", http.MethodGet, c.cfg.SiteCheckURL, nil, nil, invokeOpts{siteCheck: true})
	if apiErr != nil {
		return false, apiErr
	}
	return true, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + path
}

type invokeOpts struct {
	// siteCheck disables retries and uses the short fixed timeout.
	siteCheck bool
	// interpretIneligible enables the book operation's special handling
	// of error-status bodies carrying an explicit Eligible:false.
	interpretIneligible bool
	extraHeaders        http.Header
}

// invoke performs one logical call with the dual-counter retry loop:
// rate-limit responses consume the 429 delay sequence, every other
// retryable failure consumes the general sequence, both doubling up to
// MaxBackoffDelay.
func (c *Client) invoke(ctx context.Context, op, method, rawURL string, params url.Values, payload any, opts invokeOpts) ([]byte, *domain.APIError) {
	maxRetries := c.cfg.MaxRetries
	if opts.siteCheck {
		maxRetries = 0
	}
	generalDelay := c.cfg.InitialBackoffGeneral
	rateDelay := c.cfg.InitialBackoff429

	var lastErr *domain.APIError

	for attempt := 0; attempt <= maxRetries; attempt++ {
		start := time.Now()
		metrics.APICallsTotal.WithLabelValues(op).Inc()

		status, body, reqErr := c.doOnce(ctx, method, rawURL, params, payload, opts)
		metrics.APILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

		if reqErr != nil {
			lastErr = classifyTransport(reqErr)
			metrics.APIErrorsTotal.WithLabelValues(op, string(lastErr.Kind)).Inc()
			c.log.Warn("request failed", "operation", op, "attempt", attempt+1, "kind", lastErr.Kind, "error", reqErr)
		} else if status == http.StatusTooManyRequests {
			lastErr = &domain.APIError{Kind: domain.ErrKindRateLimited, StatusCode: status, Message: "too many requests"}
			metrics.APIErrorsTotal.WithLabelValues(op, string(lastErr.Kind)).Inc()
			c.log.Warn("rate limited", "operation", op, "attempt", attempt+1, "delay", rateDelay)
			if attempt >= maxRetries {
				return nil, lastErr
			}
			if err := sleepCtx(ctx, rateDelay); err != nil {
				return nil, lastErr
			}
			rateDelay = doubleCapped(rateDelay, c.cfg.MaxBackoffDelay)
			continue
		} else if status >= 400 {
			if opts.interpretIneligible {
				if res := ineligibleFromBody(body); res != nil {
					c.log.Warn("booking refused by service", "operation", op, "status", status)
					return body, nil
				}
				msg := trimForLog(string(body))
				metrics.APIErrorsTotal.WithLabelValues(op, string(domain.ErrKindHTTP)).Inc()
				return nil, &domain.APIError{Kind: domain.ErrKindHTTP, StatusCode: status, Message: msg}
			}
			lastErr = &domain.APIError{Kind: domain.ErrKindHTTP, StatusCode: status, Message: trimForLog(string(body))}
			metrics.APIErrorsTotal.WithLabelValues(op, string(lastErr.Kind)).Inc()
			c.log.Warn("server error", "operation", op, "attempt", attempt+1, "status", status)
		} else {
			return body, nil
		}

		if attempt >= maxRetries || !lastErr.Retryable() {
			return nil, lastErr
		}
		if err := sleepCtx(ctx, generalDelay); err != nil {
			return nil, lastErr
		}
		generalDelay = doubleCapped(generalDelay, c.cfg.MaxBackoffDelay)
	}

	if lastErr == nil {
		lastErr = &domain.APIError{Kind: domain.ErrKindUnknown, Message: "call gave up without a classified failure"}
	}
	return nil, lastErr
}

// doOnce issues a single HTTP request and reads the full body.
func (c *Client) doOnce(ctx context.Context, method, rawURL string, params url.Values, payload any, opts invokeOpts) (int, []byte, error) {
	timeout := c.cfg.RequestTimeout
	if opts.siteCheck {
		timeout = c.cfg.SiteCheckTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range opts.extraHeaders {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) decode(op string, body []byte, out any) *domain.APIError {
	if err := json.Unmarshal(body, out); err != nil {
		metrics.APIErrorsTotal.WithLabelValues(op, string(domain.ErrKindMalformedResponse)).Inc()
		return &domain.APIError{Kind: domain.ErrKindMalformedResponse, Message: trimForLog(string(body))}
	}
	return nil
}

// ineligibleFromBody returns a parsed result when the body is valid JSON
// carrying an explicit Eligible:false, nil otherwise.
func ineligibleFromBody(body []byte) *BookingResult {
	var res BookingResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil
	}
	if res.Ineligible() {
		return &res
	}
	return nil
}

func containsIneligibleMarker(text string) bool {
	compact := strings.ReplaceAll(strings.ToLower(text), " ", "")
	return strings.Contains(compact, `"eligible":false`)
}

// classifyTransport maps a raw transport error onto the gateway taxonomy.
func classifyTransport(err error) *domain.APIError {
	msg := err.Error()

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.APIError{Kind: domain.ErrKindTimeout, Message: msg}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "tls:") || strings.Contains(lower, "x509:") ||
		strings.Contains(lower, "certificate"):
		return &domain.APIError{Kind: domain.ErrKindTLS, Message: msg}
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "network is unreachable"):
		return &domain.APIError{Kind: domain.ErrKindConnection, Message: msg}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &domain.APIError{Kind: domain.ErrKindConnection, Message: msg}
	}
	return &domain.APIError{Kind: domain.ErrKindUnknown, Message: msg}
}

func doubleCapped(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}

func trimForLog(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
