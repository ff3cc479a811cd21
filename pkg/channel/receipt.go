package channel

import "context"

// Receipt completes once its envelope has been written to the transport,
// or failed. Delivery to the remote device is never acknowledged.
type Receipt struct {
	done chan struct{}
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func failedReceipt(err error) *Receipt {
	r := newReceipt()
	r.resolve(err)
	return r
}

// Completed returns a receipt that is already resolved with err. Publishers
// that write synchronously use it.
func Completed(err error) *Receipt {
	return failedReceipt(err)
}

func (r *Receipt) resolve(err error) {
	r.err = err
	close(r.done)
}

// Done is closed when the receipt completes.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Err returns the write error. Only meaningful after Done is closed.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the receipt completes or ctx ends.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
