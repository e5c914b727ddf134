package usbd480

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB identification and pipe layout of the USBD480 family.
const (
	// VendorID and ProductID identify a USBD480 display on the bus.
	VendorID  gousb.ID = 0x16C0
	ProductID gousb.ID = 0x08A6

	// bulkOutEndpoint is the frame data pipe.
	bulkOutEndpoint = 2

	controlTimeout = 1 * time.Second
	bulkTimeout    = 5 * time.Second
)

// USBTransport is the gousb-backed Transport for a physical display.
type USBTransport struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
}

var _ Transport = (*USBTransport)(nil)

// OpenUSB enumerates the bus for a USBD480 display and returns a transport
// bound to the first match. The returned transport owns the device handle;
// closing it releases the interface and the device.
func OpenUSB(ctx *gousb.Context) (*USBTransport, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		return nil, fmt.Errorf("usbd480: open device: %w", err)
	}
	if dev == nil {
		return nil, fmt.Errorf("usbd480: no device with ID %s:%s found", VendorID, ProductID)
	}
	t, err := NewUSBTransport(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return t, nil
}

// NewUSBTransport wraps an already-open gousb device. The device must be a
// USBD480; the constructor claims interface 0 and opens the bulk frame pipe.
func NewUSBTransport(dev *gousb.Device) (*USBTransport, error) {
	// A kernel driver (usbd480fb or usbfs) may hold the interface.
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("usbd480: auto detach: %w", err)
	}
	dev.ControlTimeout = controlTimeout

	cfg, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("usbd480: claim config: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usbd480: claim interface: %w", err)
	}
	out, err := intf.OutEndpoint(bulkOutEndpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, fmt.Errorf("usbd480: open bulk endpoint: %w", err)
	}
	return &USBTransport{dev: dev, cfg: cfg, intf: intf, out: out}, nil
}

// Control performs one vendor control transfer on endpoint 0.
func (t *USBTransport) Control(req ControlRequest) ([]byte, error) {
	rType := uint8(gousb.ControlVendor | gousb.ControlInterface)
	if req.Direction == DirIn {
		rType |= uint8(gousb.ControlIn)
		buf := make([]byte, req.Length)
		n, err := t.dev.Control(rType, req.Request, req.Value, req.Index, buf)
		if err != nil {
			return nil, mapUSBError(err)
		}
		return buf[:n], nil
	}
	rType |= uint8(gousb.ControlOut)
	if _, err := t.dev.Control(rType, req.Request, req.Value, req.Index, nil); err != nil {
		return nil, mapUSBError(err)
	}
	return nil, nil
}

// Bulk ships one full frame over the bulk-out pipe.
func (t *USBTransport) Bulk(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bulkTimeout)
	defer cancel()
	n, err := t.out.WriteContext(ctx, p)
	if err != nil {
		return n, mapUSBError(err)
	}
	return n, nil
}

// Close releases the claimed interface and closes the device handle.
func (t *USBTransport) Close() error {
	t.intf.Close()
	if err := t.cfg.Close(); err != nil {
		t.dev.Close()
		return err
	}
	return t.dev.Close()
}

// String identifies the underlying USB device (bus:address form).
func (t *USBTransport) String() string {
	return t.dev.String()
}

// mapUSBError folds libusb failure codes into the driver error kinds so
// callers do not have to know gousb. Unrecognized errors pass through
// wrapped, still inspectable with errors.As.
func mapUSBError(err error) error {
	switch {
	case errors.Is(err, gousb.ErrorTimeout),
		errors.Is(err, gousb.TransferTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTransportTimeout, err)
	case errors.Is(err, gousb.ErrorPipe),
		errors.Is(err, gousb.ErrorIO),
		errors.Is(err, gousb.TransferStall):
		return fmt.Errorf("%w: %v", ErrTransportRejected, err)
	default:
		return fmt.Errorf("usbd480: transfer failed: %w", err)
	}
}
