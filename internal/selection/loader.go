package selection

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledgerline/paysync/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LoadCSVFile reads a payment reference list. Columns are
// refNbr[,customerID[,amount]]; a header row starting with "refNbr" or
// "ref_nbr" is skipped.
func LoadCSVFile(path string) ([]*domain.Payment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var payments []*domain.Payment
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		first := strings.TrimSpace(record[0])
		if first == "" {
			continue
		}
		if i == 0 && isHeader(first) {
			continue
		}

		p := &domain.Payment{RefNbr: first}
		if len(record) > 1 {
			p.CustomerID = strings.TrimSpace(record[1])
		}
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			amount, err := decimal.NewFromString(strings.TrimSpace(record[2]))
			if err != nil {
				return nil, fmt.Errorf("%s line %d: invalid amount %q: %w", filepath.Base(path), i+1, record[2], err)
			}
			p.Amount = amount
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func isHeader(first string) bool {
	switch strings.ToLower(first) {
	case "refnbr", "ref_nbr", "reference", "referencenumber":
		return true
	}
	return false
}

// LoadCriteriaFile parses and compiles a YAML criteria file.
func LoadCriteriaFile(path string) (*Criteria, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Criteria
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := c.Compile(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &c, nil
}

// LoadDir builds a selection from a directory: every .csv file contributes
// payments, then every .yaml/.yml criteria file filters the union, in
// lexical filename order. Duplicate references are dropped, first wins.
func LoadDir(dir string) (*Selection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var csvFiles, criteriaFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv":
			csvFiles = append(csvFiles, entry.Name())
		case ".yaml", ".yml":
			criteriaFiles = append(criteriaFiles, entry.Name())
		}
	}
	sort.Strings(csvFiles)
	sort.Strings(criteriaFiles)

	var payments []*domain.Payment
	seen := make(map[string]bool)
	for _, name := range csvFiles {
		loaded, err := LoadCSVFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, p := range loaded {
			if seen[p.RefNbr] {
				continue
			}
			seen[p.RefNbr] = true
			payments = append(payments, p)
		}
	}

	for _, name := range criteriaFiles {
		criteria, err := LoadCriteriaFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		payments = criteria.Apply(payments)
	}

	return &Selection{Name: filepath.Base(dir), Payments: payments}, nil
}
