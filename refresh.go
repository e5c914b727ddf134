package usbd480

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// refresher continuously ships frames to the display from a dedicated
// goroutine. Each cycle picks the back half of video memory, arms the
// device-side write pointer, bulk-transfers the full frame, and only then
// switches the displayed frame start to the just-written address, so the
// panel never scans out a half-transferred frame.
//
// Cycles are strictly serialized: the next cycle is scheduled a fixed delay
// after the previous one returns, never concurrently with it. A transfer
// that overruns the period delays the next cycle instead of skipping it.
type refresher struct {
	transport Transport
	mem       *videoMemory
	interval  time.Duration
	initial   time.Duration
	log       *slog.Logger

	// page selects the back-buffer half for the upcoming cycle and flips
	// once per cycle. Read concurrently by Dev.Framebuffer.
	page atomic.Uint32

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newRefresher(t Transport, mem *videoMemory, interval, initial time.Duration, log *slog.Logger) *refresher {
	return &refresher{
		transport: t,
		mem:       mem,
		interval:  interval,
		initial:   initial,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// start launches the refresh goroutine. The first cycle runs after the
// longer initial delay so attach can settle before traffic starts.
func (r *refresher) start() {
	go r.run()
}

// run is the refresh goroutine. It resubmits itself with a fixed delay
// rather than ticking on wall-clock alignment: the delay counts from cycle
// completion, mirroring a delayed-work resubmission loop.
func (r *refresher) run() {
	defer close(r.done)

	timer := time.NewTimer(r.initial)
	defer timer.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-timer.C:
		}
		// A stop that raced the timer must win: no cycle may chain
		// after cancellation was requested.
		select {
		case <-r.stop:
			return
		default:
		}
		r.cycle()
		timer.Reset(r.interval)
	}
}

// cycle performs one refresh: select target, arm write pointer, transfer
// the frame, commit the displayed address. Transfer failures are reported
// to the logger and the cycle still completes; refresh is best effort and
// a transient bus fault must not stop the loop.
func (r *refresher) cycle() {
	page := r.page.Load()
	target := r.mem.backOffset(page)

	// Flip before transferring: the producer surface moves to the other
	// half while this frame is on the wire.
	r.page.Store(1 - page)

	if _, err := r.transport.Control(setAddressRequest(uint32(target))); err != nil {
		r.log.Warn("set write address failed", "addr", target, "err", err)
	}
	if _, err := r.transport.Bulk(r.mem.frame(target)); err != nil {
		r.log.Warn("frame transfer failed", "addr", target, "err", err)
	}
	if _, err := r.transport.Control(setFrameStartAddressRequest(uint32(target))); err != nil {
		r.log.Warn("set frame start failed", "addr", target, "err", err)
	}
}

// backOffset is the offset of the half the producer should write: always
// the half not most recently committed for display.
func (r *refresher) backOffset() int {
	return r.mem.backOffset(r.page.Load())
}

// close stops the loop and blocks until the goroutine has exited. An
// in-flight cycle is allowed to finish (bounded by the transfer timeouts);
// no further cycle is scheduled afterwards. Safe to call more than once.
func (r *refresher) close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
