package gwusb

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"gwusb/frame"
)

// fakePort is an in-memory loopback transport.Port. queueReply schedules a
// reply to be emitted the next time the engine writes a request — mirroring
// a real device, which only answers after it receives a command — so tests
// never race the reader against a call that hasn't sent anything yet.
// pushNow instead delivers bytes immediately, for the one scenario (async
// "DR" reception) with no preceding request to hang the reply off of.
type fakePort struct {
	mu       sync.Mutex
	leftover []byte
	dataCh   chan []byte
	closeCh  chan struct{}
	closeOne sync.Once

	pendingMu sync.Mutex
	pending   [][]byte

	sentMu sync.Mutex
	sent   [][]byte
}

func newFakePort() *fakePort {
	return &fakePort{
		dataCh:  make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakePort) queueReply(b []byte) {
	f.pendingMu.Lock()
	f.pending = append(f.pending, append([]byte(nil), b...))
	f.pendingMu.Unlock()
}

func (f *fakePort) pushNow(b []byte) {
	f.dataCh <- append([]byte(nil), b...)
}

func (f *fakePort) Read(p []byte) (int, error) {
	for {
		f.mu.Lock()
		if len(f.leftover) > 0 {
			n := copy(p, f.leftover)
			f.leftover = f.leftover[n:]
			f.mu.Unlock()
			return n, nil
		}
		f.mu.Unlock()

		select {
		case data := <-f.dataCh:
			f.mu.Lock()
			f.leftover = data
			f.mu.Unlock()
		case <-f.closeCh:
			return 0, io.EOF
		}
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.sentMu.Lock()
	f.sent = append(f.sent, cp)
	f.sentMu.Unlock()

	f.pendingMu.Lock()
	var reply []byte
	if len(f.pending) > 0 {
		reply = f.pending[0]
		f.pending = f.pending[1:]
	}
	f.pendingMu.Unlock()
	if reply != nil {
		f.dataCh <- reply
	}

	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closeOne.Do(func() { close(f.closeCh) })
	return nil
}

func (f *fakePort) Flush() error { return nil }

func (f *fakePort) lastSent() []byte {
	f.sentMu.Lock()
	defer f.sentMu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func newTestClient(t *testing.T) (*Client, *fakePort) {
	t.Helper()
	port := newFakePort()
	cfg := DefaultConfig("fake")
	cfg.ReaderReadyTimeout = time.Second
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.CloseTimeout = 50 * time.Millisecond

	c, err := newClient(port, cfg)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, port
}

func TestScenarioTest(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte{'<', 'O', 'K', 0x0D})

	ok, err := c.Test()
	if err != nil {
		t.Fatalf("Test(): %v", err)
	}
	if !ok {
		t.Error("Test() = false, want true")
	}
	if !bytes.Equal(port.lastSent(), []byte{0x3E, 0x0D}) {
		t.Errorf("sent = % X, want 3E 0D", port.lastSent())
	}
}

func TestScenarioSpiStatusReadyComm(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte{'<', 'S', ':', 0x80, 0x0D})

	status, err := c.SpiStatus()
	if err != nil {
		t.Fatalf("SpiStatus(): %v", err)
	}
	if status.Mode != frame.SpiReadyComm {
		t.Errorf("Mode = %v, want ReadyComm", status.Mode)
	}
	if !bytes.Equal(port.lastSent(), []byte{0x3E, 'S', 0x0D}) {
		t.Errorf("sent = % X, want 3E 53 0D", port.lastSent())
	}
}

func TestScenarioSpiStatusDataReady(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte{'<', 'S', ':', 0x05, 0x0D})

	status, err := c.SpiStatus()
	if err != nil {
		t.Fatalf("SpiStatus(): %v", err)
	}
	if !status.DataReady || status.DataReadyLen != 5 {
		t.Errorf("status = %+v, want DataReady len=5", status)
	}
}

func TestScenarioSendData(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte("<DS:OK\r"))

	result, err := c.SendData([]byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if result != frame.DataSendOk {
		t.Errorf("result = %v, want Ok", result)
	}
	want := []byte{0x3E, 'D', 'S', 0x02, ':', 0xAA, 0xBB, 0x0D}
	if !bytes.Equal(port.lastSent(), want) {
		t.Errorf("sent = % X, want % X", port.lastSent(), want)
	}
}

func TestScenarioUsbInfo(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte("<I:GW#1.0#A\r"))

	info, err := c.UsbInfo()
	if err != nil {
		t.Fatalf("UsbInfo: %v", err)
	}
	if string(info.Type) != "GW" || string(info.FirmwareVersion) != "1.0" || string(info.SerialNumber) != "A" {
		t.Errorf("info = %+v, want GW/1.0/A", info)
	}
	if !bytes.Equal(port.lastSent(), []byte{0x3E, 'I', 0x0D}) {
		t.Errorf("sent = % X, want 3E 49 0D", port.lastSent())
	}
}

func TestScenarioDownloadData(t *testing.T) {
	c, port := newTestClient(t)
	payload := []byte{1, 2, 3, 4, 5}
	reply := append([]byte("<PM:"), payload...)
	reply = append(reply, 0x0D)
	port.queueReply(reply)

	out := make([]byte, 16)
	result, n, err := c.Download(frame.TargetIntEepromDownload, []byte{0, 0}, out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result != frame.ProgMemOk {
		t.Errorf("result = %v, want Ok", result)
	}
	if n != len(payload) || !bytes.Equal(out[:n], payload) {
		t.Errorf("out[:n] = % X, want % X (n=%d)", out[:n], payload, n)
	}

	want := []byte{0x3E, 'P', 'M', byte(frame.TargetIntEepromDownload), 0, 0, 0x0D}
	if !bytes.Equal(port.lastSent(), want) {
		t.Errorf("sent = % X, want % X", port.lastSent(), want)
	}
}

func TestScenarioDownloadError(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte("<PM:ERR2\r"))

	out := make([]byte, 16)
	result, n, err := c.Download(frame.TargetIntEepromDownload, []byte{0, 0}, out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result != frame.ProgMemErr2 {
		t.Errorf("result = %v, want Err2", result)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
}

func TestScenarioAsyncDelivery(t *testing.T) {
	c, port := newTestClient(t)

	received := make(chan []byte, 1)
	c.RegisterAsyncListener(func(payload []byte) {
		received <- append([]byte(nil), payload...)
	})

	port.pushNow([]byte{'<', 'D', 'R', 2, ':', 0x11, 0x22, 0x0D})

	select {
	case payload := <-received:
		if !bytes.Equal(payload, []byte{0x11, 0x22}) {
			t.Errorf("payload = % X, want 11 22", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestUploadRoundTrip(t *testing.T) {
	c, port := newTestClient(t)
	port.queueReply([]byte("<PM:OK\r"))

	payload := []byte{0xCA, 0xFE}
	result, err := c.Upload(frame.TargetFlashUpload, payload)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result != frame.ProgMemOk {
		t.Errorf("result = %v, want Ok", result)
	}

	want := append([]byte{0x3E, 'P', 'M', byte(frame.TargetFlashUpload)}, payload...)
	want = append(want, 0x0D)
	if !bytes.Equal(port.lastSent(), want) {
		t.Errorf("sent = % X, want % X", port.lastSent(), want)
	}
}

func TestUploadRejectsDownloadDataReply(t *testing.T) {
	c, port := newTestClient(t)
	// Total frame length 8 (not 7 or 9), so the parser classifies this as
	// KindProgMemDownloadData. Upload must not tolerate that reply kind the
	// way Download does; it should surface an unexpected-kind error rather
	// than feeding the opaque bytes to ExtractPmResult.
	port.queueReply([]byte{'<', 'P', 'M', ':', 0xAA, 0xBB, 0xCC, 0x0D})

	if _, err := c.Upload(frame.TargetFlashUpload, []byte{0x01}); err == nil {
		t.Error("Upload() with a download-data-shaped reply: want error, got nil")
	}
}

func TestUploadRejectsWrongDirection(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Upload(frame.TargetIntEepromDownload, nil); err == nil {
		t.Error("Upload with a download target: want error, got nil")
	}
}

func TestDownloadRejectsWrongDirection(t *testing.T) {
	c, _ := newTestClient(t)
	out := make([]byte, 4)
	if _, _, err := c.Download(frame.TargetIntEepromUpload, nil, out); err == nil {
		t.Error("Download with an upload target: want error, got nil")
	}
}

func TestResetUsbIdempotent(t *testing.T) {
	c, port := newTestClient(t)

	port.queueReply([]byte("<R:OK\r"))
	if err := c.ResetUsb(); err != nil {
		t.Fatalf("ResetUsb() #1: %v", err)
	}
	first := append([]byte(nil), port.lastSent()...)

	port.queueReply([]byte("<R:OK\r"))
	if err := c.ResetUsb(); err != nil {
		t.Fatalf("ResetUsb() #2: %v", err)
	}
	second := port.lastSent()

	if !bytes.Equal(first, second) {
		t.Errorf("wire bytes differ across identical calls: % X vs % X", first, second)
	}
}

func TestRequestTimesOutWhenDeviceIsSilent(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Test(); err == nil {
		t.Error("Test() with no reply queued: want timeout error, got nil")
	}
}

func TestBadFrameIsSkippedAndReceptionContinues(t *testing.T) {
	c, port := newTestClient(t)

	// A malformed frame (unknown header) followed by a well-formed one in
	// the same read: the reader must skip past the first terminator and
	// still recognize the second frame.
	port.queueReply(append([]byte("<Z:OK\r"), []byte("<OK\r")...))

	ok, err := c.Test()
	if err != nil {
		t.Fatalf("Test(): %v", err)
	}
	if !ok {
		t.Error("Test() = false, want true")
	}
	if c.LastReceptionError() == "" {
		t.Error("LastReceptionError() = \"\", want a recorded bad-format message")
	}
}
