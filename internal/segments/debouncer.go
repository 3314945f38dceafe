package segments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

// Debouncer coalesces recompute requests per customer. Re-queuing a customer
// inside the window restarts their timer, so at most one recompute runs per
// customer per idle window and it always sees the latest state. The queue is
// in-process only; pending work is dropped on shutdown, which is acceptable
// for a derived view.
type Debouncer struct {
	service Service
	window  time.Duration
	logg    *logger.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// NewDebouncer wires the debounce queue in front of the segmentation service.
func NewDebouncer(service Service, window time.Duration, logg *logger.Logger) *Debouncer {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Debouncer{
		service: service,
		window:  window,
		logg:    logg,
		pending: make(map[uuid.UUID]*time.Timer),
	}
}

// QueueUpdate schedules a recompute for the customer after the debounce
// window, restarting the window if one is already pending.
func (d *Debouncer) QueueUpdate(customerID uuid.UUID) {
	if customerID == uuid.Nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if timer, ok := d.pending[customerID]; ok {
		timer.Reset(d.window)
		return
	}
	d.wg.Add(1)
	d.pending[customerID] = time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.fire(customerID)
	})
}

func (d *Debouncer) fire(customerID uuid.UUID) {
	d.mu.Lock()
	delete(d.pending, customerID)
	d.mu.Unlock()

	ctx := context.Background()
	if err := d.service.RecomputeCustomer(ctx, customerID); err != nil && d.logg != nil {
		d.logg.Error(d.logg.WithCustomerID(ctx, customerID.String()), "segment recompute failed", err)
	}
}

// Close stops accepting work, cancels pending timers and waits for in-flight
// recomputes to finish.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for id, timer := range d.pending {
		if timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
