package frame

import (
	"bytes"
	"testing"
)

func TestExtractDeviceInfo(t *testing.T) {
	f := []byte("<I:GW#1.0#A\r")
	got, err := ExtractDeviceInfo(f)
	if err != nil {
		t.Fatalf("ExtractDeviceInfo: %v", err)
	}
	want := DeviceInfo{Type: []byte("GW"), FirmwareVersion: []byte("1.0"), SerialNumber: []byte("A")}
	if !bytes.Equal(got.Type, want.Type) || !bytes.Equal(got.FirmwareVersion, want.FirmwareVersion) || !bytes.Equal(got.SerialNumber, want.SerialNumber) {
		t.Errorf("ExtractDeviceInfo = %+v, want %+v", got, want)
	}
}

func TestExtractDeviceInfoBadFormat(t *testing.T) {
	testCases := [][]byte{
		[]byte("<I:GW\r"),
		[]byte("<I:GW#1.0\r"),
	}
	for _, f := range testCases {
		if _, err := ExtractDeviceInfo(f); err == nil {
			t.Errorf("ExtractDeviceInfo(%q): want error, got nil", f)
		}
	}
}

func TestExtractModuleInfoStandard(t *testing.T) {
	body := make([]byte, 16)
	copy(body[0:4], []byte{0xAA, 0xBB, 0xCC, 0xDD})
	body[4] = 0x03 // OS version
	body[5] = 0x11 // TR type
	copy(body[6:8], []byte{0x01, 0x02})
	copy(body[8:10], []byte{0xEE, 0xFF})

	f := append([]byte("<IT:"), body...)
	f = append(f, 0x0D)

	got, err := ExtractModuleInfo(f)
	if err != nil {
		t.Fatalf("ExtractModuleInfo: %v", err)
	}
	if got.HasIBK {
		t.Errorf("HasIBK = true, want false for standard frame")
	}
	if !bytes.Equal(got.SerialNumber[:], []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("SerialNumber = % X, want AA BB CC DD", got.SerialNumber[:])
	}
	if got.OsVersion != 0x03 || got.TrType != 0x11 {
		t.Errorf("OsVersion/TrType = %02X/%02X, want 03/11", got.OsVersion, got.TrType)
	}
	if !bytes.Equal(got.IBK[:], make([]byte, 16)) {
		t.Errorf("IBK = % X, want zero-filled for standard frame", got.IBK[:])
	}
}

func TestExtractModuleInfoExtended(t *testing.T) {
	body := make([]byte, 32)
	ibk := bytes.Repeat([]byte{0x5A}, 16)
	copy(body[10:26], ibk)

	f := append([]byte("<IT:"), body...)
	f = append(f, 0x0D)

	got, err := ExtractModuleInfo(f)
	if err != nil {
		t.Fatalf("ExtractModuleInfo: %v", err)
	}
	if !got.HasIBK {
		t.Errorf("HasIBK = false, want true for extended frame")
	}
	if !bytes.Equal(got.IBK[:], ibk) {
		t.Errorf("IBK = % X, want %X", got.IBK[:], ibk)
	}
}

func TestExtractSpiStatus(t *testing.T) {
	testCases := []struct {
		in        byte
		wantReady bool
		wantMode  SpiMode
		wantLen   uint8
	}{
		{0x80, false, SpiReadyComm, 0},
		{0x00, false, SpiDisabled, 0},
		{0xFF, false, SpiHwError, 0},
		{0x05, true, 0, 5},
	}
	for _, tc := range testCases {
		f := []byte{'<', 'S', ':', tc.in, 0x0D}
		got, err := ExtractSpiStatus(f)
		if err != nil {
			t.Fatalf("ExtractSpiStatus(%02X): %v", tc.in, err)
		}
		if got.DataReady != tc.wantReady {
			t.Errorf("ExtractSpiStatus(%02X).DataReady = %v, want %v", tc.in, got.DataReady, tc.wantReady)
		}
		if tc.wantReady && got.DataReadyLen != tc.wantLen {
			t.Errorf("ExtractSpiStatus(%02X).DataReadyLen = %d, want %d", tc.in, got.DataReadyLen, tc.wantLen)
		}
		if !tc.wantReady && got.Mode != tc.wantMode {
			t.Errorf("ExtractSpiStatus(%02X).Mode = %v, want %v", tc.in, got.Mode, tc.wantMode)
		}
	}
}

func TestExtractDataSendResult(t *testing.T) {
	testCases := []struct {
		in   []byte
		want DataSendResult
	}{
		{[]byte("<DS:OK\r"), DataSendOk},
		{[]byte("<DS:ERR\r"), DataSendErr},
		{[]byte("<DS:BUSY\r"), DataSendBusy},
	}
	for _, tc := range testCases {
		got, err := ExtractDataSendResult(tc.in)
		if err != nil {
			t.Fatalf("ExtractDataSendResult(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ExtractDataSendResult(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestExtractDrPayload(t *testing.T) {
	payload := []byte{0x11, 0x22, 0x33}
	f := append([]byte{'<', 'D', 'R', byte(len(payload)), ':'}, payload...)
	f = append(f, 0x0D)

	got, err := ExtractDrPayload(f)
	if err != nil {
		t.Fatalf("ExtractDrPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ExtractDrPayload = % X, want % X", got, payload)
	}
}

func TestExtractProgModeToggleResults(t *testing.T) {
	okFrame := []byte("<PE:OK\r")
	got, err := ExtractPeResult(okFrame)
	if err != nil || got != ProgModeOk {
		t.Errorf("ExtractPeResult(OK) = %v, %v, want ProgModeOk, nil", got, err)
	}

	errFrame := []byte("<PT:ERR1\r")
	got, err = ExtractPtResult(errFrame)
	if err != nil || got != ProgModeErr1 {
		t.Errorf("ExtractPtResult(ERR1) = %v, %v, want ProgModeErr1, nil", got, err)
	}
}

func TestExtractPmResultAllCodes(t *testing.T) {
	testCases := []struct {
		token string
		want  ProgMemResult
	}{
		{"OK", ProgMemOk},
		{"ERR2", ProgMemErr2},
		{"ERR3", ProgMemErr3},
		{"ERR4", ProgMemErr4},
		{"ERR5", ProgMemErr5},
		{"ERR6", ProgMemErr6},
		{"ERR7", ProgMemErr7},
		{"BUSY", ProgMemBusy},
	}
	for _, tc := range testCases {
		f := append([]byte("<PM:"), []byte(tc.token)...)
		f = append(f, 0x0D)
		got, err := ExtractPmResult(f)
		if err != nil {
			t.Fatalf("ExtractPmResult(%q): %v", tc.token, err)
		}
		if got != tc.want {
			t.Errorf("ExtractPmResult(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}
