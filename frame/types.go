// Package frame implements the byte-at-a-time finite state machine that
// recognizes GW-USB-xx response frames and extracts their typed payloads.
package frame

import "fmt"

// MessageKind is the FSM's terminal classification of a recognized frame.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindTest
	KindResetUsb
	KindResetTr
	KindUsbInfo
	KindTrInfo
	KindUsbIndicate
	KindSpiStatus
	KindDataSend
	KindAsyncData
	KindSwitchCustom
	KindEnterProgMode
	KindExitProgMode
	KindProgMemResp
	KindProgMemDownloadData
	KindError
)

func (k MessageKind) String() string {
	switch k {
	case KindTest:
		return "Test"
	case KindResetUsb:
		return "ResetUsb"
	case KindResetTr:
		return "ResetTr"
	case KindUsbInfo:
		return "UsbInfo"
	case KindTrInfo:
		return "TrInfo"
	case KindUsbIndicate:
		return "UsbIndicate"
	case KindSpiStatus:
		return "SpiStatus"
	case KindDataSend:
		return "DataSend"
	case KindAsyncData:
		return "AsyncData"
	case KindSwitchCustom:
		return "SwitchCustom"
	case KindEnterProgMode:
		return "EnterProgMode"
	case KindExitProgMode:
		return "ExitProgMode"
	case KindProgMemResp:
		return "ProgMemResp"
	case KindProgMemDownloadData:
		return "ProgMemDownloadData"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Outcome is the result classification of a single Parse call.
type Outcome int

const (
	Ok Outcome = iota
	NotComplete
	BadFormat
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "Ok"
	case NotComplete:
		return "NotComplete"
	case BadFormat:
		return "BadFormat"
	default:
		return "?"
	}
}

// Result is returned by Parser.Parse for a single candidate frame starting
// at position 0 of the buffer handed in.
type Result struct {
	Kind         MessageKind
	Outcome      Outcome
	LastPosition int // last byte position examined (0-based)
}

// TargetCode is the PM request's byte-0 memory-region selector. Bit 7
// encodes direction: 1 = upload (write), 0 = download (read).
type TargetCode uint8

const (
	TargetHWPConfigDownload TargetCode = 0x00
	TargetHWPConfigUpload   TargetCode = 0x80
	TargetRFPGMDownload     TargetCode = 0x01
	TargetRFPGMUpload       TargetCode = 0x81
	TargetRFBandDownload    TargetCode = 0x02
	TargetRFBandUpload      TargetCode = 0x82
	TargetPassword          TargetCode = 0x03 // write-only
	TargetUserKey           TargetCode = 0x04 // write-only
	TargetFlashDownload     TargetCode = 0x05
	TargetFlashUpload       TargetCode = 0x85
	TargetIntEepromDownload TargetCode = 0x06
	TargetIntEepromUpload   TargetCode = 0x86
	TargetExtEepromDownload TargetCode = 0x07
	TargetExtEepromUpload   TargetCode = 0x87
	TargetPlugin            TargetCode = 0x88 // write-only
)

// IsUpload reports whether this target code addresses the TR for a write
// (bit 7 set), as opposed to a read.
func (t TargetCode) IsUpload() bool {
	return t&0x80 != 0
}

// DeviceInfo is the USB-side identification decoded from an "<I:" frame.
type DeviceInfo struct {
	Type            []byte
	FirmwareVersion []byte
	SerialNumber    []byte
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("DeviceInfo{Type:%q FirmwareVersion:%q SerialNumber:%q}",
		d.Type, d.FirmwareVersion, d.SerialNumber)
}

// ModuleInfo is the TR-side identification decoded from an "<IT:" frame.
// IBK is zero-filled when the short (16-byte body, 21-byte frame) variant
// was received.
type ModuleInfo struct {
	SerialNumber [4]byte
	OsVersion    uint8
	TrType       uint8
	OsBuild      [2]byte
	Reserved     [2]byte
	IBK          [16]byte
	HasIBK       bool
}

func (m ModuleInfo) String() string {
	return fmt.Sprintf("ModuleInfo{SerialNumber:% X OsVersion:0x%02X TrType:0x%02X OsBuild:% X HasIBK:%t}",
		m.SerialNumber[:], m.OsVersion, m.TrType, m.OsBuild[:], m.HasIBK)
}

// SpiMode is the closed set of recognized single-byte SPI status values.
// Any other byte value means "data ready, N bytes queued on the TR".
type SpiMode uint8

const (
	SpiDisabled     SpiMode = 0x00
	SpiSuspended    SpiMode = 0x07
	SpiBufferProtect SpiMode = 0x3F
	SpiCrcMismatch  SpiMode = 0x3E
	SpiReadyComm    SpiMode = 0x80
	SpiReadyProg    SpiMode = 0x81
	SpiReadyDebug   SpiMode = 0x82
	SpiSlowMode     SpiMode = 0x83
	SpiHwError      SpiMode = 0xFF
)

var knownSpiModes = map[SpiMode]string{
	SpiDisabled:      "Disabled",
	SpiSuspended:     "Suspended",
	SpiBufferProtect: "BufferProtect",
	SpiCrcMismatch:   "CrcMismatch",
	SpiReadyComm:     "ReadyComm",
	SpiReadyProg:     "ReadyProg",
	SpiReadyDebug:    "ReadyDebug",
	SpiSlowMode:      "SlowMode",
	SpiHwError:       "HwError",
}

func (m SpiMode) String() string {
	if name, ok := knownSpiModes[m]; ok {
		return name
	}
	return fmt.Sprintf("SpiMode(0x%02X)", uint8(m))
}

// SpiStatus is the decoded "<S:" frame. DataReady is true when the status
// byte was not one of the recognized SpiMode values, in which case
// DataReadyLen holds the number of bytes queued on the TR.
type SpiStatus struct {
	Mode         SpiMode
	DataReady    bool
	DataReadyLen uint8
}

func (s SpiStatus) String() string {
	if s.DataReady {
		return fmt.Sprintf("SpiStatus{DataReady, len=%d}", s.DataReadyLen)
	}
	return fmt.Sprintf("SpiStatus{%s}", s.Mode)
}

// DataSendResult is the decoded "<DS:" acknowledgement.
type DataSendResult int

const (
	DataSendOk DataSendResult = iota
	DataSendErr
	DataSendBusy
)

func (r DataSendResult) String() string {
	switch r {
	case DataSendOk:
		return "Ok"
	case DataSendErr:
		return "Err"
	case DataSendBusy:
		return "Busy"
	default:
		return "?"
	}
}

// ProgModeToggleResult is the decoded "<PE:"/"<PT:" response.
type ProgModeToggleResult int

const (
	ProgModeOk ProgModeToggleResult = iota
	ProgModeErr1
)

func (r ProgModeToggleResult) String() string {
	switch r {
	case ProgModeOk:
		return "Ok"
	case ProgModeErr1:
		return "Err1"
	default:
		return "?"
	}
}

// ProgMemResult is the decoded "<PM:" status token (the textual-only
// branch of the ambiguous PM response; see parsePmBody).
type ProgMemResult int

const (
	ProgMemOk ProgMemResult = iota
	ProgMemErr2
	ProgMemErr3
	ProgMemErr4
	ProgMemErr5
	ProgMemErr6
	ProgMemErr7
	ProgMemBusy
)

func (r ProgMemResult) String() string {
	switch r {
	case ProgMemOk:
		return "Ok"
	case ProgMemErr2:
		return "Err2"
	case ProgMemErr3:
		return "Err3"
	case ProgMemErr4:
		return "Err4"
	case ProgMemErr5:
		return "Err5"
	case ProgMemErr6:
		return "Err6"
	case ProgMemErr7:
		return "Err7"
	case ProgMemBusy:
		return "Busy"
	default:
		return "?"
	}
}
