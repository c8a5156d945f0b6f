// Package batch is the concurrent batch-processing engine: it fans rows
// out across a bounded pool of workers, applies the retry policy around
// each rewrite call, and reassembles outcomes in input order regardless
// of completion order.
package batch

// Status is the terminal state of one row's rewrite.
type Status string

const (
	// StatusSuccess means the target column was rewritten.
	StatusSuccess Status = "success"
	// StatusFailed means every allowed attempt failed; the original
	// value is kept in the output.
	StatusFailed Status = "failed"
	// StatusSkipped means no API call was made: dry run, empty input,
	// or a row left unprocessed by a graceful abort.
	StatusSkipped Status = "skipped"
)

// Row is one CSV record. Rows are constructed once at load time and never
// mutated by workers; the paired Outcome is written exactly once into its
// index-addressed slot.
type Row struct {
	// Index is the zero-based position in the loaded batch. The pool
	// requires indexes to be contiguous from zero.
	Index int
	// Fields maps column name to value for every input column.
	Fields map[string]string
}

// Outcome is the result of attempting to rewrite one row.
type Outcome struct {
	Status Status
	// Text is the rewritten value; only set on success.
	Text string
	// Err is the terminal failure; only set on failure.
	Err error
	// Attempts is the number of rewrite calls made for this row.
	Attempts int
}

// Result is the run-level aggregate. Outcomes is aligned 1:1 with the
// input row order.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
}

// aggregate tallies outcome counts into a Result.
func aggregate(outcomes []Outcome) *Result {
	res := &Result{
		Total:    len(outcomes),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			res.Succeeded++
		case StatusFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res
}
