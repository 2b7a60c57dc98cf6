package gateway

import (
	"context"
	"sync"

	apperrors "scoutpay/internal/errors"
)

// Checkout is an in-flight hosted payment. Whichever of Complete, Cancel,
// Fail or Resolve runs first decides the outcome; later calls are ignored.
type Checkout struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string

	callbacks Callbacks
	once      sync.Once
	done      chan struct{}
}

// NewCheckout builds a checkout that has not been registered or watched.
func NewCheckout(reference, authURL, accessCode string, callbacks Callbacks) *Checkout {
	return &Checkout{
		Reference:        reference,
		AuthorizationURL: authURL,
		AccessCode:       accessCode,
		callbacks:        callbacks,
		done:             make(chan struct{}),
	}
}

// Done is closed after the outcome callback has returned.
func (c *Checkout) Done() <-chan struct{} {
	return c.done
}

func (c *Checkout) Complete(ctx context.Context) bool {
	return c.finish(func() {
		if c.callbacks.OnSuccess != nil {
			c.callbacks.OnSuccess(ctx, Outcome{Reference: c.Reference, Status: StatusSuccess})
		}
	})
}

func (c *Checkout) Cancel(ctx context.Context) bool {
	return c.finish(func() {
		if c.callbacks.OnCancel != nil {
			c.callbacks.OnCancel(ctx, Outcome{Reference: c.Reference, Status: StatusAbandoned})
		}
	})
}

func (c *Checkout) Fail(ctx context.Context, err error) bool {
	return c.finish(func() {
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(ctx, c.Reference, err)
		}
	})
}

// Resolve maps a gateway status onto the matching callback.
func (c *Checkout) Resolve(ctx context.Context, status string) bool {
	switch status {
	case StatusSuccess:
		return c.Complete(ctx)
	case StatusAbandoned, "cancelled":
		return c.Cancel(ctx)
	default:
		return c.Fail(ctx, apperrors.Wrap(apperrors.ErrPaymentNotSuccessful, "payment "+status, nil))
	}
}

func (c *Checkout) finish(fire func()) bool {
	fired := false
	c.once.Do(func() {
		fired = true
		defer close(c.done)
		fire()
	})
	return fired
}

// watch cancels the checkout when ctx ends first and drops it from the
// registry once it has finished.
func (c *Checkout) watch(ctx context.Context, registry *Registry) {
	go func() {
		select {
		case <-ctx.Done():
			c.Cancel(context.WithoutCancel(ctx))
		case <-c.done:
		}
		registry.remove(c.Reference)
	}()
}

// Registry indexes in-flight checkouts by reference so webhooks can resolve
// them.
type Registry struct {
	mu        sync.Mutex
	checkouts map[string]*Checkout
}

func NewRegistry() *Registry {
	return &Registry{checkouts: make(map[string]*Checkout)}
}

func (r *Registry) add(c *Checkout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkouts[c.Reference] = c
}

func (r *Registry) remove(reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkouts, reference)
}

func (r *Registry) Get(reference string) (*Checkout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.checkouts[reference]
	return c, ok
}

// Resolve delivers status to the checkout for reference. It reports false
// when no such checkout is pending in this process.
func (r *Registry) Resolve(ctx context.Context, reference, status string) bool {
	c, ok := r.Get(reference)
	if !ok {
		return false
	}
	c.Resolve(ctx, status)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.checkouts)
}
