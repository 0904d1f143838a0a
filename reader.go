package gwusb

import (
	"errors"
	"io"

	"gwusb/frame"
)

// readChunk is how many bytes the reader task tries to pull from the
// transport on each Read call, per spec §4.D step 2.
const readChunk = 1024

// runReader is the connection's single background reader task, modelled on
// gopper/protocol/transport_host.go's readLoop + processMessages: pull
// bytes, feed the FSM, and either wake a waiting caller or hand an async
// frame to the registered listener. It owns c.buf exclusively; nothing else
// touches it.
func (c *Client) runReader() {
	close(c.readerStarted)
	defer close(c.readerDone)

	chunk := make([]byte, readChunk)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := c.port.Read(chunk)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.stopReception("transport closed")
				c.cfg.Logger.Printf("gwusb: transport closed")
				return
			}
			c.stopReception("transport read error: " + err.Error())
			c.cfg.Logger.Printf("gwusb: transport read error: %v", err)
			return
		}
		if n == 0 {
			// Read unblocked on the transport's internal poll interval
			// with nothing to show for it; loop back to the stop check.
			continue
		}

		c.buf.append(chunk[:n])
		c.drainFrames()
	}
}

// drainFrames runs the parser over c.buf until it can no longer classify a
// complete frame at the front.
func (c *Client) drainFrames() {
	for {
		data := c.buf.bytes()
		if len(data) == 0 {
			return
		}

		result := c.parser.Parse(data)
		switch result.Outcome {
		case frame.NotComplete:
			return

		case frame.BadFormat:
			c.setLastReceptionError("bad message format")
			c.cfg.Logger.Printf("gwusb: skipping bad frame at position %d", result.LastPosition)
			c.skipBadFrame(data, result.LastPosition)

		case frame.Ok:
			f := append([]byte(nil), data[:result.LastPosition+1]...)
			c.buf.discard(result.LastPosition + 1)
			c.dispatchFrame(result.Kind, f)
		}
	}
}

// skipBadFrame discards bytes up to and including the next 0x0D, or the
// whole buffer if none is found, per spec §4.D.
func (c *Client) skipBadFrame(data []byte, lastPos int) {
	for i := lastPos; i < len(data); i++ {
		if data[i] == 0x0D {
			c.buf.discard(i + 1)
			return
		}
	}
	c.buf.discard(len(data))
}

func (c *Client) dispatchFrame(kind frame.MessageKind, f []byte) {
	if kind == frame.KindAsyncData {
		c.deliverAsync(f)
		return
	}
	c.responseFrame = f
	c.responseKind = kind
	select {
	case c.respReady <- struct{}{}:
	default:
		// A stale signal from an unclaimed prior reply; replace it. The
		// single-outstanding-request invariant means this should not
		// normally happen.
		<-c.respReady
		c.respReady <- struct{}{}
	}
}

// deliverAsync invokes the registered listener, if any, with the listener
// mutex held (spec §5: "listeners must not re-enter the engine"). A
// listener panic is recovered so it cannot tear down the reader task, per
// spec §7.
func (c *Client) deliverAsync(f []byte) {
	payload, err := frame.ExtractDrPayload(f)
	if err != nil {
		c.setLastReceptionError("bad message format")
		c.cfg.Logger.Printf("gwusb: bad async data frame: %v", err)
		return
	}

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	if c.listener == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.setLastReceptionError("listener failed")
			c.cfg.Logger.Printf("gwusb: async listener panicked: %v", r)
		}
	}()
	c.listener(payload)
}

func (c *Client) stopReception(reason string) {
	c.receptionStopped.Store(true)
	c.setLastReceptionError(reason)
}

func (c *Client) setLastReceptionError(msg string) {
	c.lastErrMu.Lock()
	c.lastErr = msg
	c.lastErrMu.Unlock()
}
