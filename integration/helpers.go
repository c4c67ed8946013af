//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ledgerline/paysync/internal/erp"
)

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// FakeGateway is an in-process stand-in for the ERP sync gateway. It serves
// canned application data per payment reference and synthesizes batch resync
// continuations over the same data set.
type FakeGateway struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	applications map[string][]map[string]interface{}
	refs         []string
	failRefs     map[string]bool
	resyncCalls  []map[string]interface{}
}

// NewFakeGateway starts a fake gateway serving the given payment refs,
// each with one invoice application.
func NewFakeGateway(t *testing.T, refs []string) *FakeGateway {
	t.Helper()
	g := &FakeGateway{
		t:            t,
		refs:         refs,
		applications: make(map[string][]map[string]interface{}),
		failRefs:     make(map[string]bool),
	}
	for i, ref := range refs {
		g.applications[ref] = []map[string]interface{}{
			{
				"RefNbr":     "INV-" + ref,
				"AmountPaid": float64(100 + i),
				"Balance":    0.0,
				"DocType":    "INV",
			},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/payment-applications", g.handleFetch)
	mux.HandleFunc("/payment-applications/batch", g.handleResync)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

// Client returns a gateway client pointed at the fake server.
func (g *FakeGateway) Client(t *testing.T) *erp.Client {
	t.Helper()
	client, err := erp.NewClient(erp.Config{BaseURL: g.server.URL}, erp.StaticToken("test-token"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// FailRef makes fetches for one reference return a server error.
func (g *FakeGateway) FailRef(ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failRefs[ref] = true
}

// ResyncCalls returns the recorded batch resync request bodies.
func (g *FakeGateway) ResyncCalls() []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	calls := make([]map[string]interface{}, len(g.resyncCalls))
	copy(calls, g.resyncCalls)
	return calls
}

func (g *FakeGateway) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferenceNumber string `json:"referenceNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	apps, known := g.applications[req.ReferenceNumber]
	failed := g.failRefs[req.ReferenceNumber]
	g.mu.Unlock()

	if failed || !known {
		http.Error(w, "payment not found", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"applications": apps})
}

func (g *FakeGateway) handleResync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchSize  int  `json:"batchSize"`
		Skip       int  `json:"skip"`
		ClearFirst bool `json:"clearFirst"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.resyncCalls = append(g.resyncCalls, map[string]interface{}{
		"batchSize":  req.BatchSize,
		"skip":       req.Skip,
		"clearFirst": req.ClearFirst,
	})
	total := len(g.refs)
	g.mu.Unlock()

	end := req.Skip + req.BatchSize
	if end > total {
		end = total
	}
	processed := end - req.Skip
	if processed < 0 {
		processed = 0
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":           true,
		"processed":         processed,
		"totalApplications": processed,
		"breakdown":         map[string]int{"INV": processed},
		"totalPayments":     total,
		"remaining":         total - end,
		"nextSkip":          end,
		"complete":          end >= total,
	})
}
