package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payments.csv")
	content := "refNbr,customerID,amount\nPMT-001,ACME,150.00\nPMT-002,GLOBEX,25.50\nPMT-003\n"
	os.WriteFile(path, []byte(content), 0644)

	payments, err := LoadCSVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 3 {
		t.Fatalf("payments count = %d, want 3", len(payments))
	}
	if payments[0].RefNbr != "PMT-001" || payments[0].CustomerID != "ACME" {
		t.Errorf("payment 0 = %+v", payments[0])
	}
	if !payments[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("payment 0 amount = %s, want 150", payments[0].Amount)
	}
	if !payments[1].Amount.Equal(decimal.NewFromFloat(25.5)) {
		t.Errorf("payment 1 amount = %s, want 25.5", payments[1].Amount)
	}
	// A bare reference row is valid
	if payments[2].RefNbr != "PMT-003" || payments[2].CustomerID != "" {
		t.Errorf("payment 2 = %+v", payments[2])
	}
}

func TestLoadCSVFile_NoHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.csv")
	os.WriteFile(path, []byte("PMT-001\nPMT-002\n"), 0644)

	payments, err := LoadCSVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 2 {
		t.Errorf("payments count = %d, want 2", len(payments))
	}
}

func TestLoadCSVFile_InvalidAmount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	os.WriteFile(path, []byte("PMT-001,ACME,not-a-number\n"), 0644)

	if _, err := LoadCSVFile(path); err == nil {
		t.Error("expected error for invalid amount")
	}
}

func TestLoadCriteriaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large-invoices.yaml")
	content := "customers:\n  - ACME\nminAmount: \"100.00\"\nlimit: 2\n"
	os.WriteFile(path, []byte(content), 0644)

	criteria, err := LoadCriteriaFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Name falls back to the filename
	if criteria.Name != "large-invoices" {
		t.Errorf("Name = %q, want large-invoices", criteria.Name)
	}
	if len(criteria.Customers) != 1 || criteria.Customers[0] != "ACME" {
		t.Errorf("Customers = %v", criteria.Customers)
	}
	if criteria.Limit != 2 {
		t.Errorf("Limit = %d, want 2", criteria.Limit)
	}
}

func TestLoadCriteriaFile_BadAmount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("minAmount: \"lots\"\n"), 0644)

	if _, err := LoadCriteriaFile(path); err == nil {
		t.Error("expected error for unparseable minAmount")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.csv"), []byte("PMT-001,ACME,150.00\nPMT-002,GLOBEX,25.50\n"), 0644)
	os.WriteFile(filepath.Join(dir, "b.csv"), []byte("PMT-002,GLOBEX,25.50\nPMT-003,ACME,300.00\n"), 0644)
	os.WriteFile(filepath.Join(dir, "filter.yaml"), []byte("customers:\n  - ACME\n"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	sel, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Name != filepath.Base(dir) {
		t.Errorf("Name = %q", sel.Name)
	}
	// PMT-002 deduped then filtered out by customer criteria
	if len(sel.Payments) != 2 {
		t.Fatalf("payments count = %d, want 2", len(sel.Payments))
	}
	for _, p := range sel.Payments {
		if p.CustomerID != "ACME" {
			t.Errorf("criteria let through %+v", p)
		}
	}
}

func TestCriteria_Apply(t *testing.T) {
	criteria := &Criteria{MinAmount: "50", MaxAmount: "200", Limit: 1}
	if err := criteria.Compile(); err != nil {
		t.Fatal(err)
	}

	payments := testPayments(map[string]string{
		"PMT-001": "150.00",
		"PMT-002": "25.50",
		"PMT-003": "75.00",
		"PMT-004": "500.00",
	})

	got := criteria.Apply(payments)
	if len(got) != 1 {
		t.Fatalf("matched count = %d, want 1 after limit", len(got))
	}
	if got[0].Amount.LessThan(decimal.NewFromInt(50)) || got[0].Amount.GreaterThan(decimal.NewFromInt(200)) {
		t.Errorf("matched payment out of range: %+v", got[0])
	}
}
