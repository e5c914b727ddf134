package usbd480

import "encoding/binary"

// Vendor request codes understood by the USBD480 firmware (0.5 or later).
const (
	reqGetDeviceDetails     = 0x80
	reqSetBrightness        = 0x81
	reqSetAddress           = 0xC0
	reqSetFrameStartAddress = 0xC4
)

// deviceDetailsLen is the size of the get-device-details response.
const deviceDetailsLen = 64

// deviceNameLen is the size of the name field inside the details response.
// The field is raw bytes and is not guaranteed to be NUL terminated.
const deviceNameLen = 20

// Direction is the direction of a control transfer, seen from the host.
type Direction uint8

// Control transfer directions.
const (
	DirOut Direction = iota // host to device
	DirIn                   // device to host
)

// ControlRequest describes one vendor control transfer on endpoint 0.
// It carries no payload for host-to-device requests; for device-to-host
// requests Length is the expected response size.
type ControlRequest struct {
	Direction Direction
	Request   uint8
	Value     uint16
	Index     uint16
	Length    int
}

// getDeviceDetailsRequest queries the 64-byte device details block.
func getDeviceDetailsRequest() ControlRequest {
	return ControlRequest{
		Direction: DirIn,
		Request:   reqGetDeviceDetails,
		Length:    deviceDetailsLen,
	}
}

// setAddressRequest arms the device-side write pointer. The 32-bit video
// memory address is split across the value (low 16 bits) and index (high
// 16 bits) fields of the setup packet.
func setAddressRequest(addr uint32) ControlRequest {
	return ControlRequest{
		Direction: DirOut,
		Request:   reqSetAddress,
		Value:     uint16(addr & 0xFFFF),
		Index:     uint16(addr >> 16),
	}
}

// setFrameStartAddressRequest switches the address the device scans out.
// Same value/index split as setAddressRequest.
func setFrameStartAddressRequest(addr uint32) ControlRequest {
	return ControlRequest{
		Direction: DirOut,
		Request:   reqSetFrameStartAddress,
		Value:     uint16(addr & 0xFFFF),
		Index:     uint16(addr >> 16),
	}
}

// setBrightnessRequest sets the backlight brightness (0-255).
func setBrightnessRequest(level uint8) ControlRequest {
	return ControlRequest{
		Direction: DirOut,
		Request:   reqSetBrightness,
		Value:     uint16(level),
	}
}

// deviceDetails is the decoded get-device-details response.
type deviceDetails struct {
	name   string
	width  int
	height int
}

// decodeDeviceDetails extracts the fields the driver interprets from the
// details block: the display name in bytes 0..20 and the panel geometry as
// little-endian 16-bit values at offsets 20 and 22. All other fields are
// firmware internals and are left alone.
func decodeDeviceDetails(buf []byte) (deviceDetails, bool) {
	if len(buf) < deviceNameLen+4 {
		return deviceDetails{}, false
	}
	return deviceDetails{
		name:   cutName(buf[:deviceNameLen]),
		width:  int(binary.LittleEndian.Uint16(buf[20:22])),
		height: int(binary.LittleEndian.Uint16(buf[22:24])),
	}, true
}

// cutName truncates the raw name field at the first NUL. Firmware does not
// guarantee a terminator, so a name that fills the whole field is kept as is.
func cutName(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
