package dpm

import "context"

// OrderProcessor is the integrator's business logic, invoked after a
// validated relay callback or a no-charge submission. A non-empty url
// overrides the default thank-you redirect. An error aborts the flow with a
// server error; it is the only failure class allowed to do so once
// validation has passed.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, order Record) (url string, err error)
}

// OrderProcessorFunc adapts a function to the OrderProcessor interface.
type OrderProcessorFunc func(ctx context.Context, order Record) (string, error)

// ProcessOrder implements OrderProcessor.
func (f OrderProcessorFunc) ProcessOrder(ctx context.Context, order Record) (string, error) {
	return f(ctx, order)
}

// NopProcessor accepts every order and keeps the default redirect.
type NopProcessor struct{}

// ProcessOrder implements OrderProcessor.
func (NopProcessor) ProcessOrder(context.Context, Record) (string, error) { return "", nil }

// FieldProjector folds merchant-specific fields into the form digest so they
// become tamper-evident too. The projection must produce the same string at
// issuance and at relay time, so only project fields the gateway echoes back
// unchanged.
type FieldProjector interface {
	ProjectFields(order Record) string
}

// FieldProjectorFunc adapts a function to the FieldProjector interface.
type FieldProjectorFunc func(order Record) string

// ProjectFields implements FieldProjector.
func (f FieldProjectorFunc) ProjectFields(order Record) string { return f(order) }

// EmptyProjection digests only the built-in fields.
type EmptyProjection struct{}

// ProjectFields implements FieldProjector.
func (EmptyProjection) ProjectFields(Record) string { return "" }
