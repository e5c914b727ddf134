package usbd480

import "errors"

// Error kinds reported by the driver. Callers match them with errors.Is.
var (
	// ErrTransportTimeout means a control or bulk transfer did not complete
	// within its deadline (1s for control transfers, 5s for a frame).
	ErrTransportTimeout = errors.New("usbd480: transport timeout")

	// ErrTransportRejected means the device stalled or NAKed a transfer.
	ErrTransportRejected = errors.New("usbd480: transfer rejected by device")

	// ErrAllocationFailed means the video memory region could not be sized
	// or allocated.
	ErrAllocationFailed = errors.New("usbd480: video memory allocation failed")

	// ErrGeometryUnavailable means the device details query failed or
	// reported a zero-area panel. Attach does not proceed without geometry.
	ErrGeometryUnavailable = errors.New("usbd480: device geometry unavailable")

	// ErrAttributeWriteFailed means a brightness write did not reach the
	// device. The cached value still reflects the requested level.
	ErrAttributeWriteFailed = errors.New("usbd480: attribute write failed")

	// ErrClosed means the session has been detached.
	ErrClosed = errors.New("usbd480: device closed")
)

// Transport issues vendor transfers against one attached display.
//
// Implementations own the transfer deadlines: control requests are bounded
// by about one second, a bulk frame transfer by about five seconds (large
// enough for a full frame at full-speed bus throughput). Failures are
// reported as ErrTransportTimeout or ErrTransportRejected where the cause
// is known; no retries are attempted at this layer.
type Transport interface {
	// Control performs one control transfer on endpoint 0. For DirIn
	// requests it returns the response payload, which may be shorter than
	// req.Length on a short read.
	Control(req ControlRequest) ([]byte, error)

	// Bulk writes p to the display's bulk-out frame pipe and returns the
	// number of bytes accepted by the device.
	Bulk(p []byte) (int, error)

	// Close releases the transport. In-flight transfers fail.
	Close() error
}
