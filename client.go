// Package gwusb is a host-side library for the GW-USB-xx gateway protocol:
// a serial-line command/response engine that probes and resets the gateway
// and its attached TR radio module, reads SPI status, sends and receives
// application data, and drives the programming protocol that uploads and
// downloads TR memory regions.
package gwusb

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gwusb/frame"
	"gwusb/transport"
)

// AsyncListener receives the payload of an inbound "DR" frame. It is
// invoked with the listener mutex held; it must not call back into the
// Client (spec: listeners must not re-enter the engine).
type AsyncListener func(payload []byte)

// Client is a single connection to one gateway. It owns the reader task for
// the lifetime of the connection. The zero value is not usable; construct
// with Open.
type Client struct {
	port   transport.Port
	cfg    *Config
	parser *frame.Parser

	// buf is owned solely by the reader task.
	buf frameBuffer

	// requestMu serializes doRequest round trips; only one caller may be
	// mid-request at a time.
	requestMu sync.Mutex

	// respReady is the request-complete latch: a size-1 buffered channel,
	// drained before each send, signaled once by the reader when it parses
	// a non-async frame.
	respReady chan struct{}

	// responseFrame/responseKind are the single-producer (reader) /
	// single-consumer (caller) "last response" slot.
	responseFrame []byte
	responseKind  frame.MessageKind

	stopCh    chan struct{}
	stopOnce  sync.Once

	readerStarted chan struct{}
	readerDone    chan struct{}

	receptionStopped atomic.Bool

	lastErrMu sync.Mutex
	lastErr   string

	listenerMu sync.Mutex
	listener   AsyncListener
}

// Open dials device at the gateway's fixed link parameters and starts the
// reader task, returning once the reader has confirmed it is running or
// cfg.ReaderReadyTimeout elapses. cfg may be nil, in which case
// DefaultConfig(device) is used.
func Open(device string, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig(device)
	}

	port, err := transport.Open(cfg.Device)
	if err != nil {
		return nil, newInitError("open", err)
	}

	c, err := newClient(port, cfg)
	if err != nil {
		port.Close()
		return nil, err
	}
	return c, nil
}

// newClient wires an already-open port into a running Client. It is
// separated from Open so tests can drive the engine and reader against a
// fake in-memory transport.Port instead of a real serial connection.
func newClient(port transport.Port, cfg *Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	c := &Client{
		port:          port,
		cfg:           cfg,
		parser:        frame.NewParser(),
		respReady:     make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		readerStarted: make(chan struct{}),
		readerDone:    make(chan struct{}),
	}

	go c.runReader()

	select {
	case <-c.readerStarted:
	case <-time.After(cfg.ReaderReadyTimeout):
		return nil, newInitError("open", errors.New("reader task did not start in time"))
	}

	return c, nil
}

// Close signals the reader task to stop, waits up to cfg.CloseTimeout for
// it to exit, and closes the underlying port.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.readerDone:
	case <-time.After(c.cfg.CloseTimeout):
	}

	return c.port.Close()
}

// IsReceptionStopped reports whether the reader task has exited after a
// transport-fatal error. Once true, every subsequent call fails immediately.
func (c *Client) IsReceptionStopped() bool {
	return c.receptionStopped.Load()
}

// LastReceptionError returns the most recent transport-fatal or frame-local
// reception error message, or "" if none has occurred.
func (c *Client) LastReceptionError() string {
	c.lastErrMu.Lock()
	defer c.lastErrMu.Unlock()
	return c.lastErr
}

// RegisterAsyncListener installs fn to receive future "DR" payloads,
// replacing any previously registered listener.
func (c *Client) RegisterAsyncListener(fn AsyncListener) {
	c.listenerMu.Lock()
	c.listener = fn
	c.listenerMu.Unlock()
}

// UnregisterAsyncListener removes the current listener, if any.
func (c *Client) UnregisterAsyncListener() {
	c.listenerMu.Lock()
	c.listener = nil
	c.listenerMu.Unlock()
}

// Test sends the bare probe request and reports whether the gateway
// answered with a well-formed "<OK\r" reply.
func (c *Client) Test() (bool, error) {
	if _, _, err := c.doRequest("test", "", nil, frame.KindTest, false); err != nil {
		return false, err
	}
	return true, nil
}

// ResetUsb resets the gateway's USB-side state.
func (c *Client) ResetUsb() error {
	_, _, err := c.doRequest("reset_usb", "R", nil, frame.KindResetUsb, false)
	return err
}

// ResetTr resets the attached TR module.
func (c *Client) ResetTr() error {
	_, _, err := c.doRequest("reset_tr", "RT", nil, frame.KindResetTr, false)
	return err
}

// UsbInfo reads the gateway's own identification.
func (c *Client) UsbInfo() (frame.DeviceInfo, error) {
	f, _, err := c.doRequest("usb_info", "I", nil, frame.KindUsbInfo, false)
	if err != nil {
		return frame.DeviceInfo{}, err
	}
	info, err := frame.ExtractDeviceInfo(f)
	if err != nil {
		return frame.DeviceInfo{}, newReceiveError("usb_info", err)
	}
	return info, nil
}

// TrInfo reads the attached TR module's identification.
func (c *Client) TrInfo() (frame.ModuleInfo, error) {
	f, _, err := c.doRequest("tr_info", "IT", nil, frame.KindTrInfo, false)
	if err != nil {
		return frame.ModuleInfo{}, err
	}
	info, err := frame.ExtractModuleInfo(f)
	if err != nil {
		return frame.ModuleInfo{}, newReceiveError("tr_info", err)
	}
	return info, nil
}

// IndicateConnectivity asks the gateway to blink its connectivity LED.
func (c *Client) IndicateConnectivity() error {
	_, _, err := c.doRequest("indicate", "B", nil, frame.KindUsbIndicate, false)
	return err
}

// SpiStatus reads the current SPI link status between gateway and TR.
func (c *Client) SpiStatus() (frame.SpiStatus, error) {
	f, _, err := c.doRequest("spi_status", "S", nil, frame.KindSpiStatus, false)
	if err != nil {
		return frame.SpiStatus{}, err
	}
	status, err := frame.ExtractSpiStatus(f)
	if err != nil {
		return frame.SpiStatus{}, newReceiveError("spi_status", err)
	}
	return status, nil
}

// SendData writes payload to the TR's application data channel.
func (c *Client) SendData(payload []byte) (frame.DataSendResult, error) {
	if err := validateBodyLength("send_data", payload); err != nil {
		return 0, err
	}

	body := make([]byte, 0, 2+len(payload))
	body = append(body, byte(len(payload)), ':')
	body = append(body, payload...)

	f, _, err := c.doRequest("send_data", "DS", body, frame.KindDataSend, false)
	if err != nil {
		return 0, err
	}
	result, err := frame.ExtractDataSendResult(f)
	if err != nil {
		return 0, newReceiveError("send_data", err)
	}
	return result, nil
}

// SwitchToCustom switches the gateway into custom pass-through mode.
func (c *Client) SwitchToCustom() error {
	_, _, err := c.doRequest("switch_to_custom", "U", nil, frame.KindSwitchCustom, false)
	return err
}

// EnterProgMode puts the TR into programming mode.
func (c *Client) EnterProgMode() (frame.ProgModeToggleResult, error) {
	f, _, err := c.doRequest("enter_prog_mode", "PE", nil, frame.KindEnterProgMode, false)
	if err != nil {
		return 0, err
	}
	result, err := frame.ExtractPeResult(f)
	if err != nil {
		return 0, newReceiveError("enter_prog_mode", err)
	}
	return result, nil
}

// ExitProgMode takes the TR out of programming mode.
func (c *Client) ExitProgMode() (frame.ProgModeToggleResult, error) {
	f, _, err := c.doRequest("exit_prog_mode", "PT", nil, frame.KindExitProgMode, false)
	if err != nil {
		return 0, err
	}
	result, err := frame.ExtractPtResult(f)
	if err != nil {
		return 0, newReceiveError("exit_prog_mode", err)
	}
	return result, nil
}

// Upload writes payload to the TR memory region selected by target, which
// must carry the upload (write) direction bit.
func (c *Client) Upload(target frame.TargetCode, payload []byte) (frame.ProgMemResult, error) {
	if err := validateTargetDirection("upload", target, true); err != nil {
		return 0, err
	}
	if err := validateBodyLength("upload", payload); err != nil {
		return 0, err
	}

	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(target))
	body = append(body, payload...)

	f, _, err := c.doRequest("upload", "PM", body, frame.KindProgMemResp, false)
	if err != nil {
		return 0, err
	}
	result, err := frame.ExtractPmResult(f)
	if err != nil {
		return 0, newReceiveError("upload", err)
	}
	return result, nil
}

// Download reads from the TR memory region selected by target, which must
// carry the download (read) direction bit. in carries any request
// parameters the target expects (e.g. address/length); out receives at
// most len(out) bytes of the reply. When the device replied with data it
// returns ProgMemOk and the number of bytes written to out; when it replied
// with a status token instead (OK included) it returns the decoded
// ProgMemResult with 0 bytes written.
func (c *Client) Download(target frame.TargetCode, in []byte, out []byte) (frame.ProgMemResult, int, error) {
	if err := validateTargetDirection("download", target, false); err != nil {
		return 0, 0, err
	}
	if err := validateBodyLength("download", in); err != nil {
		return 0, 0, err
	}

	body := make([]byte, 0, 1+len(in))
	body = append(body, byte(target))
	body = append(body, in...)

	f, kind, err := c.doRequest("download", "PM", body, frame.KindProgMemResp, true)
	if err != nil {
		return 0, 0, err
	}

	if kind == frame.KindProgMemDownloadData {
		payload, err := frame.ExtractPmDownloadPayload(f)
		if err != nil {
			return 0, 0, newReceiveError("download", err)
		}
		return frame.ProgMemOk, copy(out, payload), nil
	}

	result, err := frame.ExtractPmResult(f)
	if err != nil {
		return 0, 0, newReceiveError("download", err)
	}
	return result, 0, nil
}

var _ io.Closer = (*Client)(nil)
