// Package rgb565 provides the 16-bit packed pixel format used by the USBD480 display.
//
// The USBD480 scans out RGB565: 5 bits red, 6 bits green, 5 bits blue, with
// red in the high bits, stored little-endian two bytes per pixel.
//
// Memory layout example for one pixel with R=31, G=63, B=0 (yellow):
//
//	Packed: (31<<11) | (63<<5) | 0 = 0xFFE0
//	Bytes:  0xE0 0xFF (low byte first)
//
// This package provides:
//
// - Color: a color type holding one packed RGB565 value
// - Model: a color model converting standard Go colors to RGB565
// - Image: a draw.Image implementation over a raw RGB565 byte buffer
//
// Image can wrap an existing buffer, which is how the driver exposes a live
// view of the display's back buffer:
//
//	// Create a standalone 480x272 image
//	img := rgb565.New(image.Rect(0, 0, 480, 272))
//
//	// Set a pixel to full red
//	img.SetRGB565(10, 20, rgb565.Color{V: 0xF800})
//
//	// Use with standard Go image operations
//	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
package rgb565
