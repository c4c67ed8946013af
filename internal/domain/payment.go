package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payment is one unit of batch work: a customer payment whose application
// records are fetched from the ERP.
type Payment struct {
	ID         string
	RefNbr     string
	CustomerID string
	Amount     decimal.Decimal
}

// Validate checks that the payment can be submitted as a work item.
func (p *Payment) Validate() error {
	if strings.TrimSpace(p.RefNbr) == "" {
		return fmt.Errorf("payment reference number is required")
	}
	return nil
}

// Label returns the string used to identify the payment in logs.
func (p *Payment) Label() string {
	if p.CustomerID == "" {
		return p.RefNbr
	}
	return fmt.Sprintf("%s (%s)", p.RefNbr, p.CustomerID)
}

// DocType identifies the kind of document a payment was applied against.
type DocType string

const (
	DocTypeInvoice    DocType = "INV"
	DocTypeCreditMemo DocType = "CRM"
	DocTypeDebitMemo  DocType = "DRM"
	DocTypeUnknown    DocType = ""
)

// Application is a linkage record showing how a payment amount was applied
// against an invoice or credit memo in the ERP.
type Application struct {
	PaymentRef string
	InvoiceRef string
	AmountPaid decimal.Decimal
	Balance    decimal.Decimal
	DocType    DocType
}
