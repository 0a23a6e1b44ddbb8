package notify

import "context"

// Dispatcher accepts a single outbound notification. Delivery reliability
// (retries, bounces, pooling) lives behind this interface, not in callers.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Func adapts a function to the Dispatcher interface.
type Func func(ctx context.Context, to, subject, body string) error

// Send implements Dispatcher.
func (f Func) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
