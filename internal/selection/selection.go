package selection

import (
	"fmt"

	"github.com/ledgerline/paysync/internal/domain"
	"github.com/shopspring/decimal"
)

// Selection is a named work set of payments for a batch fetch run.
type Selection struct {
	Name     string
	Payments []*domain.Payment
}

// Criteria narrows a payment list. Loaded from operator-written YAML files.
// Amount bounds are strings in the file so money never round-trips through
// floats.
type Criteria struct {
	Name      string   `yaml:"name"`
	Customers []string `yaml:"customers"`
	Refs      []string `yaml:"refs"`
	MinAmount string   `yaml:"minAmount"`
	MaxAmount string   `yaml:"maxAmount"`
	Limit     int      `yaml:"limit"`

	minAmount *decimal.Decimal
	maxAmount *decimal.Decimal
}

// Compile parses the amount bounds. Must be called before Matches.
func (c *Criteria) Compile() error {
	if c.MinAmount != "" {
		d, err := decimal.NewFromString(c.MinAmount)
		if err != nil {
			return fmt.Errorf("invalid minAmount %q: %w", c.MinAmount, err)
		}
		c.minAmount = &d
	}
	if c.MaxAmount != "" {
		d, err := decimal.NewFromString(c.MaxAmount)
		if err != nil {
			return fmt.Errorf("invalid maxAmount %q: %w", c.MaxAmount, err)
		}
		c.maxAmount = &d
	}
	return nil
}

// Matches reports whether the payment passes every configured filter.
func (c *Criteria) Matches(p *domain.Payment) bool {
	if len(c.Customers) > 0 && !contains(c.Customers, p.CustomerID) {
		return false
	}
	if len(c.Refs) > 0 && !contains(c.Refs, p.RefNbr) {
		return false
	}
	if c.minAmount != nil && p.Amount.LessThan(*c.minAmount) {
		return false
	}
	if c.maxAmount != nil && p.Amount.GreaterThan(*c.maxAmount) {
		return false
	}
	return true
}

// Apply filters the payments and truncates to the configured limit.
func (c *Criteria) Apply(payments []*domain.Payment) []*domain.Payment {
	var out []*domain.Payment
	for _, p := range payments {
		if c.Matches(p) {
			out = append(out, p)
		}
	}
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
