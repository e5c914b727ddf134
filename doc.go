// Package usbd480 drives a USBD480 USB pixel display.
//
// The USBD480 is a USB-attached RGB565 display (the common USBD480-LQ043
// panel is 480x272). The device reports its own geometry, so other
// resolutions work unchanged; 480x272, 640x480, 240x320 and 800x256 panels
// exist. Firmware 0.5 (2009/05/28) or later is required.
//
// # Refresh model
//
// The display is host driven and continuously updated: the driver owns a
// video memory region holding two full frames and a background goroutine
// that, every refresh interval, arms the device-side write pointer, bulk
// transfers the back frame, and switches the displayed frame start to the
// address just written. The buffer roles flip every cycle, so the device
// never scans out a half-transferred frame.
//
// Producers draw into the live back buffer through Framebuffer, Draw, or
// Write; there is no commit call. No tear-free guarantee is made between a
// producer and an in-flight transfer - a frame written concurrently with
// its transfer may be shipped partially updated. This is deliberate: the
// refresh is best effort, like a scanout engine, not a command queue.
//
// # Basic usage
//
//	package main
//
//	import (
//		"image"
//		"image/color"
//
//		"github.com/google/gousb"
//		"github.com/flavioheleno/usbd480"
//	)
//
//	func main() {
//		ctx := gousb.NewContext()
//		defer ctx.Close()
//
//		transport, _ := usbd480.OpenUSB(ctx)
//		dev, _ := usbd480.New(transport, nil)
//		defer dev.Close()
//
//		// Draw; the background refresh picks it up.
//		dev.Draw(dev.Bounds(), image.NewUniform(color.White), image.Point{})
//	}
//
// # Device attributes
//
// Width, Height and Name are read once at attach and immutable. Brightness
// is write-through with an optimistic cache: SetBrightness records the
// requested level before issuing the transfer and does not roll back on
// failure, so Brightness reflects the last requested level, not confirmed
// device state. Callers that need confirmation must treat an
// ErrAttributeWriteFailed error as the signal.
//
// # Error handling
//
// Attach fails synchronously with ErrGeometryUnavailable or
// ErrAllocationFailed. Transfer failures inside the refresh loop are
// reported to the configured logger (see SetLogger) and never stop the
// loop; a transient bus fault must not permanently blank the panel. The
// driver performs no retries - layer a retry policy on top of the reported
// error kinds if needed.
//
// # Compatibility with periph.io
//
// Dev implements the display.Drawer interface from periph.io:
// https://pkg.go.dev/periph.io/x/conn/v3/display
//
// # Wire protocol
//
// Four vendor requests on control endpoint 0 (get device details 0x80, set
// write address 0xC0, set frame start address 0xC4, set brightness 0x81)
// plus a bulk-out pipe on endpoint 2 for frame data. Control transfers are
// bounded by a 1 second timeout, the frame transfer by 5 seconds.
package usbd480
