package domain

// ResyncRequest is the payload for one call to the ERP batch resync endpoint.
// ClearFirst must be true at most once per run, on the very first call at
// skip 0, so the server does not destructively clear data mid-run.
type ResyncRequest struct {
	BatchSize  int  `json:"batchSize"`
	Skip       int  `json:"skip"`
	ClearFirst bool `json:"clearFirst"`
}

// ResyncResult is the continuation state returned by the batch resync
// endpoint after it processes one server-side batch.
type ResyncResult struct {
	Success           bool           `json:"success"`
	Processed         int            `json:"processed"`
	TotalApplications int            `json:"totalApplications"`
	Breakdown         map[string]int `json:"breakdown"`
	TotalPayments     int            `json:"totalPayments"`
	Remaining         int            `json:"remaining"`
	NextSkip          int            `json:"nextSkip"`
	Complete          bool           `json:"complete"`
	DurationMs        int64          `json:"durationMs"`
	Errors            []string       `json:"errors"`
}

// ProgressPercent derives completion from the server-reported totals,
// guarding against a zero payment count.
func (r *ResyncResult) ProgressPercent() float64 {
	if r.TotalPayments == 0 {
		return 0
	}
	return float64(r.TotalPayments-r.Remaining) / float64(r.TotalPayments) * 100
}

// ResyncTotals accumulates per-batch results across a whole resync run.
type ResyncTotals struct {
	Batches           int
	Processed         int
	TotalApplications int
	Breakdown         map[string]int
	Errors            int
}

// Add folds one batch result into the running totals.
func (t *ResyncTotals) Add(res *ResyncResult) {
	t.Batches++
	t.Processed += res.Processed
	t.TotalApplications += res.TotalApplications
	t.Errors += len(res.Errors)
	if len(res.Breakdown) > 0 {
		if t.Breakdown == nil {
			t.Breakdown = make(map[string]int)
		}
		for docType, n := range res.Breakdown {
			t.Breakdown[docType] += n
		}
	}
}
