// processor.go
package main

import "context"

// ItemProcessor runs one external transform per work item and turns every
// expected failure into a tagged ItemFailure.
type ItemProcessor[T, R any] struct {
	// Transform performs the single remote call for an item
	Transform func(ctx context.Context, payload T) (R, error)

	// Validate checks the transform result; nil means no validation
	Validate func(result R) *ItemFailure

	// Pacer delays after each transform call
	Pacer *Pacer
}

// Process transforms item.Payload and validates the result
func (p *ItemProcessor[T, R]) Process(ctx context.Context, item WorkItem[T]) (R, *ItemFailure) {
	var zero R

	result, err := Call(p.Pacer, func() (R, error) {
		return p.Transform(ctx, item.Payload)
	})
	if err != nil {
		return zero, Classify(err)
	}

	if p.Validate != nil {
		if failure := p.Validate(result); failure != nil {
			if failure.Kind == "" {
				failure.Kind = ValidationFailure
			}
			return zero, failure
		}
	}

	return result, nil
}
