package payment

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrUnknownReference   = errors.New("no pending payment for reference")
	ErrDuplicateReference = errors.New("reference is already pending")
)

type callbacks struct {
	onSuccess    func(Confirmation)
	onCancel     func()
	registeredAt time.Time
}

type PendingOption func(*Pending)

// WithTTL makes Expire drop references that have waited longer than ttl.
// Zero keeps references until they resolve.
func WithTTL(ttl time.Duration) PendingOption {
	return func(p *Pending) {
		p.ttl = ttl
	}
}

func WithClock(now func() time.Time) PendingOption {
	return func(p *Pending) {
		p.now = now
	}
}

// Pending tracks widget callbacks by reference until the widget reports back.
// Each reference resolves at most once; later reports are rejected.
type Pending struct {
	mu      sync.Mutex
	waiting map[string]callbacks
	ttl     time.Duration
	now     func() time.Time
}

func NewPending(opts ...PendingOption) *Pending {
	p := &Pending{
		waiting: make(map[string]callbacks),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register stores the callbacks of reference. A reference that is already
// waiting keeps its callbacks and ErrDuplicateReference is returned.
func (p *Pending) Register(reference string, onSuccess func(Confirmation), onCancel func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.waiting[reference]; ok {
		return ErrDuplicateReference
	}
	p.waiting[reference] = callbacks{onSuccess: onSuccess, onCancel: onCancel, registeredAt: p.now()}
	return nil
}

// Forget drops a reference without invoking anything.
func (p *Pending) Forget(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiting, reference)
}

func (p *Pending) Has(reference string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.waiting[reference]
	return ok
}

func (p *Pending) take(reference string) (callbacks, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.waiting[reference]
	if !ok {
		return callbacks{}, ErrUnknownReference
	}
	delete(p.waiting, reference)
	return cb, nil
}

func (p *Pending) Succeed(conf Confirmation) error {
	cb, err := p.take(conf.Reference)
	if err != nil {
		return err
	}
	if cb.onSuccess != nil {
		cb.onSuccess(conf)
	}
	return nil
}

func (p *Pending) Cancel(reference string) error {
	cb, err := p.take(reference)
	if err != nil {
		return err
	}
	if cb.onCancel != nil {
		cb.onCancel()
	}
	return nil
}

// Expire drops every reference older than the TTL without invoking its
// callbacks and returns the dropped references.
func (p *Pending) Expire() []string {
	if p.ttl <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.ttl)
	var expired []string
	for ref, cb := range p.waiting {
		if cb.registeredAt.Before(cutoff) {
			delete(p.waiting, ref)
			expired = append(expired, ref)
		}
	}
	return expired
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
