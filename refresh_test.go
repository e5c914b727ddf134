package usbd480

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestRefresher(t *testing.T, ft *fakeTransport, frameBytes int) *refresher {
	t.Helper()
	mem, err := newVideoMemory(frameBytes)
	if err != nil {
		t.Fatal(err)
	}
	return newRefresher(ft, mem, time.Millisecond, time.Millisecond, newNopLogger())
}

// cycleOps extracts the per-cycle transfer triples from the recorded ops.
func cycleOps(t *testing.T, ops []recordedOp) [][3]recordedOp {
	t.Helper()
	if len(ops)%3 != 0 {
		t.Fatalf("recorded %d ops, want a multiple of 3", len(ops))
	}
	var cycles [][3]recordedOp
	for i := 0; i+2 < len(ops); i += 3 {
		cycles = append(cycles, [3]recordedOp{ops[i], ops[i+1], ops[i+2]})
	}
	return cycles
}

func TestCycleOrderAndTargets(t *testing.T) {
	const frameBytes = 153600 // 240x320
	ft := newFakeTransport(240, 320, "USBD480")
	r := newTestRefresher(t, ft, frameBytes)

	r.cycle()
	r.cycle()
	r.cycle()

	cycles := cycleOps(t, ft.snapshot())
	if len(cycles) != 3 {
		t.Fatalf("got %d cycles, want 3", len(cycles))
	}

	wantTargets := []uint32{0, frameBytes, 0}
	for i, c := range cycles {
		arm, frame, commit := c[0], c[1], c[2]

		// Write pointer is armed before the payload moves, and the
		// displayed address switches only after the transfer.
		if arm.kind != "control" || arm.req.Request != reqSetAddress {
			t.Fatalf("cycle %d op 0 = %+v, want set address", i, arm)
		}
		if frame.kind != "bulk" {
			t.Fatalf("cycle %d op 1 = %+v, want bulk", i, frame)
		}
		if commit.kind != "control" || commit.req.Request != reqSetFrameStartAddress {
			t.Fatalf("cycle %d op 2 = %+v, want set frame start", i, commit)
		}

		addr := uint32(arm.req.Value) | uint32(arm.req.Index)<<16
		if addr != wantTargets[i] {
			t.Errorf("cycle %d target = %d, want %d", i, addr, wantTargets[i])
		}
		commitAddr := uint32(commit.req.Value) | uint32(commit.req.Index)<<16
		if commitAddr != addr {
			t.Errorf("cycle %d commits %d, transferred %d", i, commitAddr, addr)
		}
		if frame.bulkLen != frameBytes {
			t.Errorf("cycle %d transferred %d bytes, want %d", i, frame.bulkLen, frameBytes)
		}
	}
}

func TestBackOffsetNeverDisplayed(t *testing.T) {
	const frameBytes = 153600
	ft := newFakeTransport(240, 320, "USBD480")
	r := newTestRefresher(t, ft, frameBytes)

	if got := r.backOffset(); got != 0 {
		t.Fatalf("initial back offset = %d, want 0", got)
	}

	last := -1
	for i := 0; i < 6; i++ {
		r.cycle()
		ops := ft.snapshot()
		commit := ops[len(ops)-1]
		displayed := int(uint32(commit.req.Value) | uint32(commit.req.Index)<<16)

		back := r.backOffset()
		if back == displayed {
			t.Fatalf("cycle %d: back offset %d equals displayed offset", i, back)
		}
		if back == last {
			t.Fatalf("cycle %d: back offset %d did not alternate", i, back)
		}
		last = back
	}
}

func TestCycleContinuesAfterTransferFailure(t *testing.T) {
	ft := newFakeTransport(240, 320, "USBD480")
	ft.bulkErr = ErrTransportTimeout

	var logBuf bytes.Buffer
	var mu sync.Mutex
	handler := slog.NewTextHandler(lockedWriter{&mu, &logBuf}, nil)

	mem, err := newVideoMemory(64)
	if err != nil {
		t.Fatal(err)
	}
	r := newRefresher(ft, mem, time.Millisecond, time.Millisecond, slog.New(handler))
	r.start()
	defer r.close()

	// The timeout must be reported and must not stop the loop.
	if !ft.waitBulk(3, 2*time.Second) {
		t.Fatal("refresh loop stopped after a transfer failure")
	}
	r.close()

	mu.Lock()
	logged := logBuf.String()
	mu.Unlock()
	if !bytes.Contains([]byte(logged), []byte("frame transfer failed")) {
		t.Errorf("failure not reported to logger, got: %s", logged)
	}

	// The commit still follows the failed transfer; each cycle is complete.
	cycles := cycleOps(t, ft.snapshot())
	if len(cycles) < 3 {
		t.Fatalf("got %d complete cycles, want at least 3", len(cycles))
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestAtMostOneCycleInFlight(t *testing.T) {
	ft := newFakeTransport(240, 320, "USBD480")
	ft.bulkDelay = 2 * time.Millisecond // overruns the 1ms period

	mem, err := newVideoMemory(64)
	if err != nil {
		t.Fatal(err)
	}
	r := newRefresher(ft, mem, time.Millisecond, time.Millisecond, newNopLogger())
	r.start()

	if !ft.waitBulk(10, 5*time.Second) {
		t.Fatal("refresh loop did not run")
	}
	r.close()

	ft.mu.Lock()
	maxSeen := ft.maxInFlight
	ft.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("max concurrent transfers = %d, want 1", maxSeen)
	}
}

func TestCloseJoinsInFlightCycle(t *testing.T) {
	ft := newFakeTransport(240, 320, "USBD480")
	ft.bulkGate = make(chan struct{})
	ft.bulkStarted = make(chan struct{}, 1)

	mem, err := newVideoMemory(64)
	if err != nil {
		t.Fatal(err)
	}
	r := newRefresher(ft, mem, time.Millisecond, time.Millisecond, newNopLogger())
	r.start()

	// Wait for a cycle to enter its bulk transfer, then ask for shutdown
	// while the transfer is stuck.
	select {
	case <-ft.bulkStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("no bulk transfer started")
	}

	closed := make(chan struct{})
	go func() {
		r.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a transfer was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(ft.bulkGate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after the transfer finished")
	}

	// No chained cycle after cancellation.
	n := ft.countBulk()
	time.Sleep(20 * time.Millisecond)
	if got := ft.countBulk(); got != n {
		t.Errorf("bulk transfers continued after close: %d -> %d", n, got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	ft := newFakeTransport(240, 320, "USBD480")
	r := newTestRefresher(t, ft, 64)
	r.start()
	r.close()
	r.close()
}

func TestCycleErrorsAreErrorKinds(t *testing.T) {
	ft := newFakeTransport(240, 320, "USBD480")
	ft.controlErr[reqSetAddress] = ErrTransportRejected

	r := newTestRefresher(t, ft, 64)
	r.cycle()

	// Sanity: the injected kind round-trips through the fake.
	_, err := ft.Control(setAddressRequest(0))
	if !errors.Is(err, ErrTransportRejected) {
		t.Fatalf("error = %v, want ErrTransportRejected", err)
	}
}
