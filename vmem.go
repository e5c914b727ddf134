package usbd480

import "fmt"

// maxFrameBytes caps the video memory request. The largest panel the
// firmware reports is well under 1M pixels; anything bigger is a corrupt
// details response, not a real display.
const maxFrameBytes = 16 << 20

// videoMemory is the host-side mirror of the display's video memory: one
// contiguous allocation holding two full frames at offsets 0 and frameBytes.
// At any instant one frame is the front (last address the device was told to
// display) and the other is the back (written by the producer and shipped on
// the next refresh). The refresher flips the roles once per completed cycle.
type videoMemory struct {
	frameBytes int
	buf        []byte
}

// newVideoMemory allocates a zeroed two-frame region for the given frame
// size in bytes.
func newVideoMemory(frameBytes int) (*videoMemory, error) {
	if frameBytes <= 0 || frameBytes > maxFrameBytes {
		return nil, fmt.Errorf("%w: frame size %d bytes", ErrAllocationFailed, frameBytes)
	}
	return &videoMemory{
		frameBytes: frameBytes,
		buf:        make([]byte, 2*frameBytes),
	}, nil
}

// size is the total allocation, always twice the frame size.
func (m *videoMemory) size() int {
	return len(m.buf)
}

// backOffset maps the page flag to the back-buffer offset: the half that is
// the target of the next transfer, never the half most recently committed
// for display. Page 0 selects offset 0, page 1 selects frameBytes.
func (m *videoMemory) backOffset(page uint32) int {
	if page == 0 {
		return 0
	}
	return m.frameBytes
}

// frame returns the one-frame window starting at offset.
func (m *videoMemory) frame(offset int) []byte {
	return m.buf[offset : offset+m.frameBytes]
}

// release drops the region. Must not be called while a refresh cycle is in
// flight; the session joins the refresher first.
func (m *videoMemory) release() {
	m.buf = nil
}
