// Package mevo issues prescriptions and medical certificates through the
// Mevo digital-document service. Without credentials the client runs in mock
// mode and never touches the network.
package mevo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DocumentPrescription = "prescription"
	DocumentCertificate  = "certificate"

	ModeMock     = "mock"
	ModeProvider = "provider"

	ProviderBirdID = "bird_id"
	ProviderViddas = "viddas"

	// RequestTimeout bounds every provider call.
	RequestTimeout = 15 * time.Second

	mockBaseURL = "https://mevo.mock.local"
)

func ValidDocumentType(t string) bool {
	return t == DocumentPrescription || t == DocumentCertificate
}

func ValidSignatureProvider(p string) bool {
	return p == ProviderBirdID || p == ProviderViddas
}

type Config struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
}

// Payload is the document request forwarded to the provider.
type Payload struct {
	DocumentType   string          `json:"documentType"`
	PrescriptionID string          `json:"prescriptionId"`
	PatientID      string          `json:"patientId,omitempty"`
	Prescription   json.RawMessage `json:"prescription,omitempty"`
	Patient        json.RawMessage `json:"patient,omitempty"`
	Doctor         *Doctor         `json:"doctor,omitempty"`
	CallbackURL    string          `json:"callbackUrl,omitempty"`
}

type Doctor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Result is the normalized outcome of an issuance call.
type Result struct {
	Status             string          `json:"status"`
	ProviderDocumentID string          `json:"providerDocumentId"`
	ProviderToken      string          `json:"providerToken"`
	Mode               string          `json:"mode"`
	RawResponse        json.RawMessage `json:"rawResponse"`
}

// SignatureSession describes where the doctor completes the digital
// signature flow.
type SignatureSession struct {
	Provider    string `json:"provider"`
	SessionID   string `json:"sessionId"`
	AuthURL     string `json:"authUrl"`
	EmbedURL    string `json:"embedUrl"`
	CallbackURL string `json:"callbackUrl"`
	Mode        string `json:"mode"`
}

// ProviderError is returned when the provider answers with a non-2xx status
// or cannot be reached. Status is 0 for transport failures.
type ProviderError struct {
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("mevo: request failed: %v", e.Err)
	}
	return fmt.Sprintf("mevo: provider returned %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type Client struct {
	cfg    Config
	http   *resty.Client
	logger zerolog.Logger
	newID  func() string
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{cfg: cfg, logger: logger, newID: uuid.NewString}
	if c.Configured() {
		c.http = resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(RequestTimeout).
			SetRetryCount(0).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}
	return c
}

// Configured reports whether calls go to the real provider.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

func (c *Client) Mode() string {
	if c.Configured() {
		return ModeProvider
	}
	return ModeMock
}

// IssueDocument sends a single POST to the provider. It does not retry.
func (c *Client) IssueDocument(ctx context.Context, p Payload) (*Result, error) {
	if p.CallbackURL == "" {
		p.CallbackURL = c.cfg.CallbackURL
	}
	if !c.Configured() {
		return c.mockDocument(p), nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		Post("/documents")
	if err != nil {
		c.logger.Error().Err(err).
			Str("prescription_id", p.PrescriptionID).
			Msg("mevo request failed")
		return nil, &ProviderError{Err: err}
	}
	if !resp.IsSuccess() {
		c.logger.Error().
			Int("status", resp.StatusCode()).
			Str("prescription_id", p.PrescriptionID).
			Msg("mevo returned an error")
		return nil, &ProviderError{Status: resp.StatusCode(), Body: resp.String()}
	}

	return decodeResult(resp.StatusCode(), resp.Body())
}

func decodeResult(status int, body []byte) (*Result, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ProviderError{Status: status, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}

	res := &Result{
		Status:             firstString(fields, "status"),
		ProviderDocumentID: firstString(fields, "documentId", "id"),
		ProviderToken:      firstString(fields, "token", "accessToken"),
		Mode:               ModeProvider,
		RawResponse:        json.RawMessage(body),
	}
	if res.Status == "" {
		res.Status = "issued"
	}
	return res, nil
}

// firstString returns the first non-empty value among keys. Numeric ids are
// rendered without exponent.
func firstString(fields map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func (c *Client) mockDocument(p Payload) *Result {
	prefix := "mock-rx-"
	if p.DocumentType == DocumentCertificate {
		prefix = "mock-cert-"
	}
	id := prefix + c.newID()
	raw, _ := json.Marshal(map[string]interface{}{
		"mock":       true,
		"documentId": id,
		"message":    "Mevo credentials are not configured; the document was simulated",
	})
	return &Result{
		Status:             "issued",
		ProviderDocumentID: id,
		ProviderToken:      "mock-token-" + c.newID(),
		Mode:               ModeMock,
		RawResponse:        raw,
	}
}

// SignatureSession bootstraps the signature flow for provider. The URLs are
// derived from the configured base URL; in mock mode a local placeholder host
// is used.
func (c *Client) SignatureSession(_ context.Context, provider string) (*SignatureSession, error) {
	if !ValidSignatureProvider(provider) {
		return nil, fmt.Errorf("mevo: unsupported signature provider %q", provider)
	}

	base := c.cfg.BaseURL
	if !c.Configured() {
		base = mockBaseURL
	}
	id := c.newID()
	q := url.Values{"session": {id}}
	if c.cfg.CallbackURL != "" {
		q.Set("callback", c.cfg.CallbackURL)
	}

	return &SignatureSession{
		Provider:    provider,
		SessionID:   id,
		AuthURL:     fmt.Sprintf("%s/signature/%s/authorize?%s", base, provider, q.Encode()),
		EmbedURL:    fmt.Sprintf("%s/signature/%s/embed?%s", base, provider, q.Encode()),
		CallbackURL: c.cfg.CallbackURL,
		Mode:        c.Mode(),
	}, nil
}
