package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
)

// Update carries one recomputed processed image back to the caller.
type Update struct {
	// Run is the tuning generation the image was computed for.
	Run   string
	Index int
	Image *image.Gray
	Err   error
}

// RecomputeOrder lists image indices starting with current and then
// alternating outwards, nearer below before nearer above.
func RecomputeOrder(current, n int) []int {
	if n <= 0 {
		return nil
	}
	if current < 0 {
		current = 0
	} else if current >= n {
		current = n - 1
	}

	order := make([]int, 0, n)
	order = append(order, current)
	below, above := current, n-current-1
	for i := 1; i <= below || i <= above; i++ {
		if i <= below {
			order = append(order, current-i)
		}
		if i <= above {
			order = append(order, current+i)
		}
	}
	return order
}

// Recomputer re-binarizes a calibration's control images after the blur
// radius or noise margin changes. At most one recomputation is live: a new
// Submit cancels the previous run and waits for it to stop before starting.
// Results arrive on Updates and are applied by the caller.
type Recomputer struct {
	cal     *Calibration
	pool    *WorkerPool
	updates chan Update

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewRecomputer creates a Recomputer for cal with its own worker.
func NewRecomputer(cal *Calibration) *Recomputer {
	pool := NewWorkerPool(1)
	pool.Start()
	return &Recomputer{
		cal:     cal,
		pool:    pool,
		updates: make(chan Update, len(cal.Images)),
	}
}

// Updates returns the channel recomputed images are delivered on. It is
// closed by Close.
func (r *Recomputer) Updates() <-chan Update {
	return r.updates
}

// stopLocked cancels the live run and waits for it to finish. r.mu is held.
func (r *Recomputer) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
}

// Submit starts recomputing every control image at the given blur radius and
// noise margin, beginning with image current. It returns the tuning
// generation the resulting updates will carry.
func (r *Recomputer) Submit(ctx context.Context, blur int, noise float64, current int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", context.Canceled
	}

	r.stopLocked()

	gen, err := r.cal.tune(blur, noise)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	log := r.cal.pc.log().WithFields(logrus.Fields{
		"run": gen, "stage": "recompute", "blur": blur, "noise": noise,
	})
	order := RecomputeOrder(current, len(r.cal.Images))

	r.pool.Submit(func() {
		defer close(done)
		for _, i := range order {
			// Cancellation is honoured between images.
			if runCtx.Err() != nil {
				log.Debug("recompute superseded")
				return
			}
			if !r.cal.Images[i].OK() {
				continue
			}
			bin, err := r.cal.binarize(i, blur, noise)
			select {
			case r.updates <- Update{Run: gen, Index: i, Image: bin, Err: err}:
			case <-runCtx.Done():
				return
			}
		}
		log.Debug("recompute finished")
	})
	return gen, nil
}

// Wait blocks until the live run, if any, has finished or been canceled.
func (r *Recomputer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels the live run, stops the worker and closes Updates.
func (r *Recomputer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.stopLocked()
	r.pool.Close()
	r.pool.Wait()
	close(r.updates)
}
