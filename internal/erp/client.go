package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds every gateway request. The hosted gateway has been
// seen hanging on cold starts, so a missing timeout stalls a whole run.
const DefaultTimeout = 30 * time.Second

// TokenProvider returns a valid bearer token for the sync gateway,
// refreshing it as needed. Injected so the client never reaches into
// ambient session state.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a TokenProvider that always yields the given token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// Config configures the gateway client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("gateway base_url is required")
	}
	return nil
}

// Client talks to the ERP sync gateway. It performs exactly one unit of
// remote work per call and always returns classification through the error
// value, never a panic.
type Client struct {
	baseURL string
	token   TokenProvider
	client  *http.Client
}

// NewClient creates a gateway client.
func NewClient(cfg Config, token TokenProvider) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token provider is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// applicationPayload accepts both the ERP-native and the snake_case field
// spellings the gateway has emitted across versions.
type applicationPayload struct {
	RefNbr        string           `json:"RefNbr"`
	InvoiceRef    string           `json:"invoice_ref"`
	AmountPaid    *decimal.Decimal `json:"AmountPaid"`
	AmountPaidAlt *decimal.Decimal `json:"amount_paid"`
	Balance       *decimal.Decimal `json:"Balance"`
	BalanceAlt    *decimal.Decimal `json:"balance"`
	DocType       string           `json:"DocType"`
	DocTypeAlt    string           `json:"doc_type"`
}

func (p *applicationPayload) toDomain(paymentRef string) domain.Application {
	app := domain.Application{PaymentRef: paymentRef}

	app.InvoiceRef = p.RefNbr
	if app.InvoiceRef == "" {
		app.InvoiceRef = p.InvoiceRef
	}

	if p.AmountPaid != nil {
		app.AmountPaid = *p.AmountPaid
	} else if p.AmountPaidAlt != nil {
		app.AmountPaid = *p.AmountPaidAlt
	}

	if p.Balance != nil {
		app.Balance = *p.Balance
	} else if p.BalanceAlt != nil {
		app.Balance = *p.BalanceAlt
	}

	docType := p.DocType
	if docType == "" {
		docType = p.DocTypeAlt
	}
	app.DocType = domain.DocType(docType)

	return app
}

// FetchApplications fetches the application records for one payment.
// A 2xx response with a well-formed body is a success even when it holds
// zero applications; everything else is a failure returned as an error.
func (c *Client) FetchApplications(ctx context.Context, payment *domain.Payment) ([]domain.Application, error) {
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"referenceNumber": payment.RefNbr})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Applications []applicationPayload `json:"applications"`
	}
	if err := c.post(ctx, "/payment-applications", body, &resp); err != nil {
		return nil, fmt.Errorf("fetching applications for %s: %w", payment.RefNbr, err)
	}

	apps := make([]domain.Application, 0, len(resp.Applications))
	for i := range resp.Applications {
		apps = append(apps, resp.Applications[i].toDomain(payment.RefNbr))
	}
	return apps, nil
}

// RunResyncBatch asks the gateway to process one server-side resync batch
// and returns its continuation state. Callers treat a transport error or a
// Success=false result as fatal to the run.
func (c *Client) RunResyncBatch(ctx context.Context, req domain.ResyncRequest) (*domain.ResyncResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var result domain.ResyncResult
	if err := c.post(ctx, "/payment-applications/batch", body, &result); err != nil {
		return nil, fmt.Errorf("resync batch at skip %d: %w", req.Skip, err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
