package usbd480

import (
	"encoding/binary"
	"sync"
	"time"
)

// recordedOp is one transfer captured by fakeTransport.
type recordedOp struct {
	kind    string // "control" or "bulk"
	req     ControlRequest
	bulkLen int
}

// fakeTransport is an in-memory Transport for session and scheduler tests.
// It answers the details query from the details field and records every
// transfer in order.
type fakeTransport struct {
	mu  sync.Mutex
	ops []recordedOp

	details    []byte
	detailsErr error
	controlErr map[uint8]error // per request code
	bulkErr    error

	// bulkGate, when non-nil, blocks Bulk until the channel is closed.
	// bulkStarted is signaled once per Bulk call before blocking.
	bulkGate    chan struct{}
	bulkStarted chan struct{}

	// bulkDelay simulates transfer duration.
	bulkDelay time.Duration

	// inFlight tracks concurrent Bulk calls; maxInFlight is its high water
	// mark, used to check the at-most-one-cycle invariant.
	inFlight    int
	maxInFlight int

	closed bool
}

func newFakeTransport(width, height int, name string) *fakeTransport {
	return &fakeTransport{
		details:    detailsResponse(width, height, name),
		controlErr: make(map[uint8]error),
	}
}

// detailsResponse builds a 64-byte get-device-details response.
func detailsResponse(width, height int, name string) []byte {
	buf := make([]byte, deviceDetailsLen)
	copy(buf[:deviceNameLen], name)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(width))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(height))
	return buf
}

func (f *fakeTransport) Control(req ControlRequest) ([]byte, error) {
	f.mu.Lock()
	f.ops = append(f.ops, recordedOp{kind: "control", req: req})
	detailsErr := f.detailsErr
	opErr := f.controlErr[req.Request]
	details := f.details
	f.mu.Unlock()

	if req.Request == reqGetDeviceDetails {
		if detailsErr != nil {
			return nil, detailsErr
		}
		return details, nil
	}
	if opErr != nil {
		return nil, opErr
	}
	return nil, nil
}

func (f *fakeTransport) Bulk(p []byte) (int, error) {
	f.mu.Lock()
	f.ops = append(f.ops, recordedOp{kind: "bulk", bulkLen: len(p)})
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.bulkGate
	started := f.bulkStarted
	delay := f.bulkDelay
	bulkErr := f.bulkErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if bulkErr != nil {
		return 0, bulkErr
	}
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// snapshot returns a copy of the recorded transfers.
func (f *fakeTransport) snapshot() []recordedOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedOp(nil), f.ops...)
}

// countBulk returns how many bulk transfers have been recorded.
func (f *fakeTransport) countBulk() int {
	n := 0
	for _, op := range f.snapshot() {
		if op.kind == "bulk" {
			n++
		}
	}
	return n
}

// waitBulk blocks until at least n bulk transfers were recorded or the
// deadline expires.
func (f *fakeTransport) waitBulk(n int, deadline time.Duration) bool {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if f.countBulk() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
