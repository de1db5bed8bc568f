package insteon

import (
	"context"
	"sync"
	"time"

	serial "github.com/daedaluz/goserial"
)

// serialReadTimeout bounds each blocking read so the pump can observe ctx
// cancellation without a context-aware read primitive on the raw fd,
// mirroring the TCP variant's deadline-then-retry shape.
const serialReadTimeout = 250 * time.Millisecond

// serialConn implements connection over a local TTY, configured 19200
// baud, 8 data bits, 1 stop bit, no parity, no flow control (spec.md §6).
// Grounded on Daedaluz-goserial/port_linux.go's Port type and structured
// like connection.go's network: a single read pump broadcasting through
// the shared listenerSlot rather than its own listener bookkeeping.
type serialConn struct {
	wmu  mutex
	slot listenerSlot
	port *serial.Port
}

var _ connection = (*serialConn)(nil)

// openSerial dials a local serial device at 19200 8N1 with no flow
// control, matching spec.md §6 exactly. Grounded on
// Daedaluz-goserial/port_linux.go's Open/MakeRaw/SetSpeed/SetAttr calls.
func openSerial(path string) (*serialConn, error) {
	port, err := serial.Open(path, serial.NewOptions().SetReadTimeout(serialReadTimeout))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, &TransportError{Err: err}
	}
	attrs.MakeRaw()
	attrs.SetSpeed(serial.B19200)
	attrs.Cflag &^= serial.CSTOPB                             // one stop bit
	attrs.Cflag &^= serial.PARENB                             // no parity
	attrs.Cflag &^= serial.CRTSCTS                            // no hardware flow control
	attrs.Iflag &^= serial.IXON | serial.IXOFF | serial.IXANY // no xon/xoff
	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, &TransportError{Err: err}
	}
	return &serialConn{wmu: newMutex(), port: port}, nil
}

func (c *serialConn) close() error {
	return c.port.Close()
}

// read pumps the port in a loop, broadcasting every non-empty read to the
// attached listener, until ctx is canceled or the port reports ErrClosed.
// Any other read error, a poll timeout included, is not reported and the
// loop continues.
func (c *serialConn) read(ctx context.Context, buf []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := c.port.ReadTimeout(buf, serialReadTimeout)
		if n > 0 {
			c.slot.broadcast(ctx, buf[:n], nil)
		}
		if err != nil {
			if err == serial.ErrClosed {
				c.slot.broadcast(ctx, nil, &TransportError{Err: err})
				return err
			}
			// a poll timeout with n==0 is "no data yet", not fatal.
			continue
		}
	}
}

func (c *serialConn) write(ctx context.Context, data []byte) error {
	if err := c.wmu.lock(ctx); err != nil {
		return err
	}
	defer c.wmu.unlock()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}()
	_, err := c.port.Write(data)
	close(done)
	wg.Wait()
	return err
}

func (c *serialConn) listen(ctx context.Context, callback func(chunk []byte, err error) (quit bool)) (context.CancelFunc, <-chan struct{}) {
	return c.slot.listen(ctx, callback)
}
