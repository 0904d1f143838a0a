package gwusb

import (
	"time"

	"gwusb/frame"
)

// requestBuilder assembles a single outgoing request frame:
// '>' + header + optional body + 0x0D. It is a fixed-headroom scratch
// buffer in the spirit of the teacher's protocol.ScratchOutput, sized for
// the largest legal request (a DS request: length byte and ':' ahead of a
// 255-byte payload).
type requestBuilder struct {
	buf [1 + 2 + 2 + 255 + 1]byte
	pos int
}

func (r *requestBuilder) reset() {
	r.pos = 0
	r.buf[0] = '>'
	r.pos = 1
}

func (r *requestBuilder) writeByte(b byte) {
	r.buf[r.pos] = b
	r.pos++
}

func (r *requestBuilder) writeString(s string) {
	r.pos += copy(r.buf[r.pos:], s)
}

func (r *requestBuilder) writeBytes(b []byte) {
	r.pos += copy(r.buf[r.pos:], b)
}

func (r *requestBuilder) terminate() []byte {
	r.writeByte(0x0D)
	return r.buf[:r.pos]
}

// doRequest performs one full synchronous round trip: build the request
// bytes from header/body, write them, and wait for the reader to signal a
// matching reply. Only one call may be in flight at a time; requestMu
// enforces this at the type level as the caller obligation spec §4.C
// describes is otherwise unchecked. allowDownloadData must be set only by
// Download, per spec §4.C step 5: the KindProgMemDownloadData tolerance
// applies only to requests whose target carries the download direction.
func (c *Client) doRequest(op, header string, body []byte, want frame.MessageKind, allowDownloadData bool) ([]byte, frame.MessageKind, error) {
	if c.receptionStopped.Load() {
		return nil, 0, newSendError(op, ErrReceptionStopped)
	}

	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	if c.receptionStopped.Load() {
		return nil, 0, newSendError(op, ErrReceptionStopped)
	}

	var rb requestBuilder
	rb.reset()
	rb.writeString(header)
	rb.writeBytes(body)
	req := rb.terminate()

	drainSignal(c.respReady)

	if _, err := c.port.Write(req); err != nil {
		return nil, 0, newSendError(op, err)
	}

	select {
	case <-c.respReady:
		return c.takeResponse(op, want, allowDownloadData)
	case <-time.After(c.cfg.RequestTimeout):
		return nil, 0, newReceiveError(op, ErrRequestTimeout)
	case <-c.stopCh:
		return nil, 0, newReceiveError(op, ErrReceptionStopped)
	}
}

// takeResponse reads the reader's single "last response" slot. The reader
// has already returned from its send on respReady by the time this runs, so
// no additional lock is needed beyond the happens-before edge the channel
// send/receive itself provides (spec §5: single-producer/single-consumer).
func (c *Client) takeResponse(op string, want frame.MessageKind, allowDownloadData bool) ([]byte, frame.MessageKind, error) {
	f := c.responseFrame
	kind := c.responseKind
	c.responseFrame = nil

	if kind == want {
		return f, kind, nil
	}
	// PM duality: a download request's reply may legitimately arrive as
	// KindProgMemDownloadData even though the request was built the same
	// way as any other PM request. Only Download (client.go) opts in via
	// allowDownloadData; Upload must not, since download-shaped opaque
	// bytes could coincidentally spell a status token and would otherwise
	// be misreported as a bogus ProgMemResult instead of failing.
	if allowDownloadData && want == frame.KindProgMemResp && kind == frame.KindProgMemDownloadData {
		return f, kind, nil
	}
	return nil, 0, newReceiveError(op, ErrUnexpectedKind)
}

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

func validateTargetDirection(op string, target frame.TargetCode, wantUpload bool) error {
	if target.IsUpload() != wantUpload {
		return newSendError(op, ErrWrongDirection)
	}
	return nil
}

func validateBodyLength(op string, body []byte) error {
	if len(body) > 255 {
		return newSendError(op, ErrBodyTooLong)
	}
	return nil
}
