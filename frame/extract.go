package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrBadFormat is returned by an extractor when the textual body of an
// otherwise well-framed message does not match any known token.
var ErrBadFormat = errors.New("bad message format")

func badFormat(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadFormat, msg)
}

// ExtractDeviceInfo decodes a "<I:<type>#<fw>#<sn>\r" frame. f must be the
// full recognized frame, as classified by Parse with Kind == KindUsbInfo.
func ExtractDeviceInfo(f []byte) (DeviceInfo, error) {
	if len(f) < 4 {
		return DeviceInfo{}, badFormat("usb info: frame too short")
	}
	body := f[3 : len(f)-1]
	firstHash := bytes.IndexByte(body, '#')
	if firstHash < 0 {
		return DeviceInfo{}, badFormat("usb info: missing first '#'")
	}
	rest := body[firstHash+1:]
	secondHash := bytes.IndexByte(rest, '#')
	if secondHash < 0 {
		return DeviceInfo{}, badFormat("usb info: missing second '#'")
	}
	return DeviceInfo{
		Type:            append([]byte(nil), body[:firstHash]...),
		FirmwareVersion: append([]byte(nil), rest[:secondHash]...),
		SerialNumber:    append([]byte(nil), rest[secondHash+1:]...),
	}, nil
}

// ExtractModuleInfo decodes a "<IT:[16 or 32 bytes]\r" frame (frame Kind ==
// KindTrInfo). The fixed fields (serial number, OS version, TR type, OS
// build, reserved) occupy the first 10 bytes of the body; the individual
// bonding key, when present, immediately follows at body[10:26] (the source
// device keeps a single running cursor through these fields with no reset
// before the IBK). The trailing 6 bytes of the extended (32-byte) body are
// unused padding.
func ExtractModuleInfo(f []byte) (ModuleInfo, error) {
	const prefix = 4 // "<IT:"
	if len(f) < prefix+1 {
		return ModuleInfo{}, badFormat("tr info: frame too short")
	}
	body := f[prefix : len(f)-1]

	var m ModuleInfo
	switch len(body) {
	case 16:
		m.HasIBK = false
	case 32:
		m.HasIBK = true
	default:
		return ModuleInfo{}, badFormat(fmt.Sprintf("tr info: unexpected body length %d", len(body)))
	}

	copy(m.SerialNumber[:], body[0:4])
	m.OsVersion = body[4]
	m.TrType = body[5]
	copy(m.OsBuild[:], body[6:8])
	copy(m.Reserved[:], body[8:10])
	if m.HasIBK {
		copy(m.IBK[:], body[10:26])
	}
	return m, nil
}

// ExtractSpiStatus decodes a "<S:[1 byte]\r" frame (frame Kind ==
// KindSpiStatus).
func ExtractSpiStatus(f []byte) (SpiStatus, error) {
	if len(f) != 5 {
		return SpiStatus{}, badFormat("spi status: unexpected frame length")
	}
	b := SpiMode(f[3])
	if _, known := knownSpiModes[b]; known {
		return SpiStatus{Mode: b}, nil
	}
	return SpiStatus{DataReady: true, DataReadyLen: uint8(b)}, nil
}

// ExtractDataSendResult decodes a "<DS:OK|ERR|BUSY\r" frame (frame Kind ==
// KindDataSend).
func ExtractDataSendResult(f []byte) (DataSendResult, error) {
	if len(f) < 5 {
		return 0, badFormat("data send: frame too short")
	}
	switch string(f[4 : len(f)-1]) {
	case "OK":
		return DataSendOk, nil
	case "ERR":
		return DataSendErr, nil
	case "BUSY":
		return DataSendBusy, nil
	default:
		return 0, badFormat("data send: unknown token " + string(f[4:len(f)-1]))
	}
}

// ExtractDrPayload decodes a "<DR[len]:[len bytes]\r" frame (frame Kind ==
// KindAsyncData), returning a copy of the payload.
func ExtractDrPayload(f []byte) ([]byte, error) {
	if len(f) < 5 {
		return nil, badFormat("async data: frame too short")
	}
	length := int(f[3])
	if len(f) != 5+length+1 {
		return nil, badFormat("async data: length mismatch")
	}
	out := make([]byte, length)
	copy(out, f[5:5+length])
	return out, nil
}

// ExtractPeResult decodes a "<PE:OK|ERR1\r" frame (frame Kind ==
// KindEnterProgMode).
func ExtractPeResult(f []byte) (ProgModeToggleResult, error) {
	return extractProgModeToggle(f)
}

// ExtractPtResult decodes a "<PT:OK|ERR1\r" frame (frame Kind ==
// KindExitProgMode).
func ExtractPtResult(f []byte) (ProgModeToggleResult, error) {
	return extractProgModeToggle(f)
}

func extractProgModeToggle(f []byte) (ProgModeToggleResult, error) {
	if len(f) < 5 {
		return 0, badFormat("prog mode toggle: frame too short")
	}
	switch string(f[4 : len(f)-1]) {
	case "OK":
		return ProgModeOk, nil
	case "ERR1":
		return ProgModeErr1, nil
	default:
		return 0, badFormat("prog mode toggle: unknown token " + string(f[4:len(f)-1]))
	}
}

// ExtractPmResult decodes a "<PM:OK|ERRn|BUSY\r" status frame (frame Kind
// == KindProgMemResp). Do not call this on a KindProgMemDownloadData frame.
func ExtractPmResult(f []byte) (ProgMemResult, error) {
	if len(f) < 5 {
		return 0, badFormat("prog mem: frame too short")
	}
	switch string(f[4 : len(f)-1]) {
	case "OK":
		return ProgMemOk, nil
	case "ERR2":
		return ProgMemErr2, nil
	case "ERR3":
		return ProgMemErr3, nil
	case "ERR4":
		return ProgMemErr4, nil
	case "ERR5":
		return ProgMemErr5, nil
	case "ERR6":
		return ProgMemErr6, nil
	case "ERR7":
		return ProgMemErr7, nil
	case "BUSY":
		return ProgMemBusy, nil
	default:
		return 0, badFormat("prog mem: unknown token " + string(f[4:len(f)-1]))
	}
}

// ExtractPmDownloadPayload decodes a "<PM:[opaque bytes]\r" frame (frame
// Kind == KindProgMemDownloadData), returning a copy of the payload. Only
// call this after Parse has returned KindProgMemDownloadData; calling it on
// a KindProgMemResp frame returns the status token bytes instead of an
// error, since the wire format offers no way to tell them apart other than
// the Kind the parser already assigned.
func ExtractPmDownloadPayload(f []byte) ([]byte, error) {
	if len(f) < 5 {
		return nil, badFormat("prog mem download: frame too short")
	}
	out := make([]byte, len(f)-4-1)
	copy(out, f[4:len(f)-1])
	return out, nil
}
