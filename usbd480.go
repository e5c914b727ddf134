// Package usbd480 drives a USBD480 USB pixel display.
//
// The USBD480-LQ043 is a 480x272 pixel display with 16 bpp RGB565 colors.
// Other resolutions exist, so no specific size is assumed: geometry is read
// from the device at attach time.
//
// See the examples for how to use this package.
package usbd480

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/display"

	"github.com/flavioheleno/usbd480/rgb565"
)

// bytesPerPixel is fixed by the panel's 16-bit color format.
const bytesPerPixel = 2

// Default refresh timing. The interval counts from the end of one refresh
// cycle to the start of the next; the first cycle waits longer so attach
// can settle.
const (
	DefaultRefreshInterval = 10 * time.Millisecond
	defaultInitialFactor   = 4
)

// Opts is the configuration for a display session.
type Opts struct {
	// RefreshInterval is the delay between refresh cycles.
	// Defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration

	// InitialDelay is the delay before the first refresh cycle.
	// Defaults to 4x RefreshInterval.
	InitialDelay time.Duration

	// Logger receives refresh failures and lifecycle events.
	// Defaults to the package logger configured with SetLogger.
	Logger *slog.Logger
}

// Dev is an attached USBD480 display session.
//
// The display is host driven: a dedicated goroutine continuously pushes the
// back half of a double-buffered video memory region to the device and flips
// the halves each cycle. Producers draw into the live back buffer at any
// time with no commit call; the next cycle picks the writes up. No tear-free
// guarantee is made between a producer and an in-flight transfer.
type Dev struct {
	transport Transport
	mem       *videoMemory
	ref       *refresher
	log       *slog.Logger

	// Geometry and name, immutable after attach.
	rect image.Rectangle
	name string

	// brightness caches the last level requested by SetBrightness. It is
	// updated before the wire transfer and not rolled back on failure, so
	// reads reflect intent, not confirmed device state.
	brightness atomic.Uint32

	mu     sync.Mutex // serializes brightness writes and close
	closed bool
}

var _ display.Drawer = (*Dev)(nil)

// New attaches a display session over the given transport.
//
// Attach queries the device details once to learn the panel geometry, sizes
// and allocates video memory for two full frames, and starts the refresh
// goroutine. A failed details query or a zero-area panel fails attach with
// ErrGeometryUnavailable; the transport is left open for the caller.
//
// opts can be nil to use defaults.
func New(t Transport, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	initial := opts.InitialDelay
	if initial <= 0 {
		initial = defaultInitialFactor * interval
	}
	log := opts.Logger
	if log == nil {
		log = defaultLogger()
	}

	buf, err := t.Control(getDeviceDetailsRequest())
	if err != nil {
		return nil, fmt.Errorf("%w: details query: %w", ErrGeometryUnavailable, err)
	}
	details, ok := decodeDeviceDetails(buf)
	if !ok {
		return nil, fmt.Errorf("%w: short details response (%d bytes)", ErrGeometryUnavailable, len(buf))
	}
	if details.width <= 0 || details.height <= 0 {
		return nil, fmt.Errorf("%w: device reported %dx%d", ErrGeometryUnavailable, details.width, details.height)
	}

	// Two full frames: offsets 0 and frameBytes are the flip targets.
	frameBytes := details.width * details.height * bytesPerPixel
	mem, err := newVideoMemory(frameBytes)
	if err != nil {
		return nil, err
	}

	d := &Dev{
		transport: t,
		mem:       mem,
		log:       log,
		rect:      image.Rect(0, 0, details.width, details.height),
		name:      details.name,
	}
	d.ref = newRefresher(t, mem, interval, initial, log)
	d.ref.start()

	log.Debug("display attached",
		"name", d.name, "width", details.width, "height", details.height,
		"vmem", mem.size(), "interval", interval)
	return d, nil
}

// Width returns the display-reported pixel width.
func (d *Dev) Width() int {
	return d.rect.Dx()
}

// Height returns the display-reported pixel height.
func (d *Dev) Height() int {
	return d.rect.Dy()
}

// Name returns the display-supplied label, truncated at the first NUL.
func (d *Dev) Name() string {
	return d.name
}

// Brightness returns the last brightness level requested through
// SetBrightness. It reflects intent, not confirmed device state.
func (d *Dev) Brightness() uint8 {
	return uint8(d.brightness.Load())
}

// SetBrightness sets the backlight brightness (0-255).
//
// The cached value is updated before the transfer is issued and is not
// rolled back if the device rejects it; on failure the error wraps
// ErrAttributeWriteFailed and a re-read still returns the requested level.
// Concurrent writes are serialized at the wire; the last one to reach the
// device wins.
func (d *Dev) SetBrightness(level uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.brightness.Store(uint32(level))
	if _, err := d.transport.Control(setBrightnessRequest(level)); err != nil {
		return fmt.Errorf("%w: brightness %d: %w", ErrAttributeWriteFailed, level, err)
	}
	return nil
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return rgb565.Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Framebuffer returns a live view over the current back buffer: the half of
// video memory that the next refresh cycle will ship. Writes through the
// returned image land directly in video memory and are picked up without a
// commit call.
//
// The view is only the back buffer for the current cycle; once the
// refresher flips, a previously obtained view aliases the half being
// displayed. Producers that care should re-fetch the view per frame, or use
// Draw which does so internally. Framebuffer must not be called after
// Close.
func (d *Dev) Framebuffer() *rgb565.Image {
	return rgb565.NewWithBuffer(d.mem.frame(d.ref.backOffset()), d.rect)
}

// Draw draws an image onto the back buffer. The dst rectangle is clipped to
// the display bounds; sp is the source origin within src.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}
	draw.Draw(d.Framebuffer(), dst, src, sp, draw.Src)
	return nil
}

// Write writes one raw full frame of RGB565 pixel data into the back
// buffer. The data must be exactly Width x Height x 2 bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if len(pixels) != d.mem.frameBytes {
		return 0, fmt.Errorf("usbd480: invalid buffer size %d, want %d", len(pixels), d.mem.frameBytes)
	}
	copy(d.mem.frame(d.ref.backOffset()), pixels)
	return len(pixels), nil
}

// Halt stops the refresh loop. The panel keeps displaying the last
// committed frame. Halt does not release video memory or the transport;
// use Close to detach.
func (d *Dev) Halt() error {
	d.ref.close()
	d.log.Debug("refresh stopped", "name", d.name)
	return nil
}

// Close detaches the session: it stops the refresh goroutine and waits for
// an in-flight cycle to finish (bounded by the transfer timeouts), then
// releases video memory and closes the transport. Close is idempotent.
func (d *Dev) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	// Join before teardown: releasing memory or the handle under an
	// outstanding transfer is forbidden.
	d.ref.close()
	d.mem.release()
	err := d.transport.Close()
	d.log.Debug("display detached", "name", d.name)
	return err
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("usbd480.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}
