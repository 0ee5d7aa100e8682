package main

import (
	"context"
	"fmt"
	"log"
)

// BatchRunner drives an ItemProcessor over work items in source order,
// skipping identities already in the ledger and persisting every outcome as
// soon as it is known.
type BatchRunner[T, R any] struct {
	Stage     string
	Ledger    *Ledger
	Output    RecordWriter[R]
	Errors    *ErrorLog
	Processor *ItemProcessor[T, R]
}

// Run processes items one at a time. Per-item failures are recorded and the
// batch continues; a failed write to the output, ledger or error store stops
// the run and is returned. Cancellation of ctx is honoured between items only.
func (r *BatchRunner[T, R]) Run(ctx context.Context, items []WorkItem[T]) (*Summary, error) {
	summary := &Summary{Stage: r.Stage, Total: len(items)}

	log.Printf("[%s] Processing %d items (%d already done)...", r.Stage, len(items), r.Ledger.Len())

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			log.Printf("[%s] Stopping after %d/%d items: %v", r.Stage, i, len(items), err)
			return summary, err
		}

		result, err := r.processItem(ctx, item)
		if err != nil {
			return summary, err
		}
		summary.add(result)
		logProgress(r.Stage, i+1, len(items), result)
	}

	log.Printf("[%s] Done: %d succeeded, %d failed, %d skipped",
		r.Stage, summary.Succeeded, summary.Failed, summary.Skipped)

	return summary, nil
}

func (r *BatchRunner[T, R]) processItem(ctx context.Context, item WorkItem[T]) (ProcessingResult, error) {
	if r.Ledger.Contains(item.ID) {
		debugLog("[%s] skipping %s: already in ledger", r.Stage, item.ID)
		return ProcessingResult{ID: item.ID, Status: StatusSkipped}, nil
	}

	// An item that has started always runs to completion.
	record, failure := r.Processor.Process(context.WithoutCancel(ctx), item)
	if failure != nil {
		if err := r.Errors.Record(item.ID, failure); err != nil {
			return ProcessingResult{}, &PersistenceError{Stage: r.Stage, ID: item.ID, Err: err}
		}
		return ProcessingResult{ID: item.ID, Status: StatusFailed, Failure: failure}, nil
	}

	if err := r.Output.Append(record); err != nil {
		return ProcessingResult{}, &PersistenceError{Stage: r.Stage, ID: item.ID, Err: err}
	}
	if err := r.Ledger.Record(item.ID); err != nil {
		return ProcessingResult{}, &PersistenceError{Stage: r.Stage, ID: item.ID, Err: err}
	}

	return ProcessingResult{ID: item.ID, Status: StatusSucceeded}, nil
}

func logProgress(stage string, done, total int, result ProcessingResult) {
	percent := float64(done) / float64(total) * 100
	prefix := fmt.Sprintf("[%s] [%d/%d] (%.1f%%)", stage, done, total, percent)

	switch result.Status {
	case StatusSucceeded:
		log.Printf("%s ✓ %s", prefix, result.ID)
	case StatusFailed:
		log.Printf("%s ✗ %s (%s failure)", prefix, result.ID, result.Failure.Kind)
	case StatusSkipped:
		debugLog("%s - %s", prefix, result.ID)
	}
}
