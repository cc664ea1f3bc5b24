package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/mastercactapus/gprobe/machine"
)

// rxBufferSize is the controller's serial receive buffer. Lines are
// only sent once the unacknowledged bytes in flight leave room.
const rxBufferSize = 128

// Conn manages line flow control over a raw connection to a grbl
// controller. Writes are paced against the controller's receive
// buffer and matched to its ok/error acknowledgements.
//
// Conn does not read the port on its own. The owner must keep calling
// Read; acknowledgements are dispatched as they pass through it.
type Conn struct {
	rw io.ReadWriter

	leftover []byte
	scan     *bufio.Scanner
	ackCh    chan error
	resetCh  chan struct{}
	closeCh  chan struct{}

	portMx sync.Mutex
	sendMx sync.Mutex

	inFlight int
	pending  []int

	sent  int64
	acked int64
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		scan:    bufio.NewScanner(rw),
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Close aborts in-progress writes and closes the underlying
// ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	close(c.closeCh)
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Conn) noteSent(n int) int64 {
	c.inFlight += n
	c.sent++
	c.pending = append(c.pending, n)
	return c.sent
}

func (c *Conn) waitSpace(n int) error {
	for c.inFlight+n > rxBufferSize {
		err := c.nextAck()
		if err != nil {
			return err
		}
	}

	return nil
}

// nextAck consumes one acknowledgement and releases its line from the
// in-flight accounting. A controller reset wipes the accounting
// instead, since grbl drops its buffer.
func (c *Conn) nextAck() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	select {
	case <-c.resetCh:
		c.inFlight = 0
		c.pending = nil
		c.acked = c.sent
		return machine.ErrReset
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		c.inFlight = 0
		c.pending = nil
		c.acked = c.sent
		return machine.ErrReset
	case e := <-c.ackCh:
		c.acked++
		c.inFlight -= c.pending[0]
		c.pending = c.pending[1:]
		return e
	}
}

// waitAcked blocks until the line with the given index has been
// acknowledged, keeping the first error seen along the way.
func (c *Conn) waitAcked(id int64) (err error) {
	for {
		e := c.nextAck()
		if err == nil {
			err = e
		}
		if c.acked == id {
			return err
		}
	}
}

// writeLine blocks until line fits the controller's buffer and has
// been written in full. It returns the line index.
func (c *Conn) writeLine(line []byte) (id int64, err error) {
	err = c.waitSpace(len(line))
	if err != nil {
		return 0, err
	}
	c.portMx.Lock()
	_, err = c.rw.Write(line)
	c.portMx.Unlock()
	if err != nil {
		return 0, err
	}
	return c.noteSent(len(line)), nil
}

// splitLinesKeepN is a bufio.SplitFunc that keeps the trailing
// newline, since grbl only executes terminated lines.
func splitLinesKeepN(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, io.ErrUnexpectedEOF
	}
	return 0, nil, nil
}

// ReadFrom streams newline-terminated lines to the controller and
// returns after the last one has been acknowledged.
func (c *Conn) ReadFrom(r io.Reader) (n int64, err error) {
	c.sendMx.Lock()
	defer c.sendMx.Unlock()
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(splitLinesKeepN)

	start := c.sent
	lastID := start
	for scanner.Scan() {
		lastID, err = c.writeLine(scanner.Bytes())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Bytes()))
	}
	if lastID == start {
		// nothing was sent, so there is nothing to wait on
		return n, nil
	}

	return n, c.waitAcked(lastID)
}

// Write returns after all lines in p have been sent and acknowledged.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.ReadFrom(bytes.NewBuffer(p))
	return int(n), err
}

// WriteByte writes directly to the port, bypassing flow control.
//
// Use for realtime commands like '?' and '!'.
func (c *Conn) WriteByte(p byte) (err error) {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.portMx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.portMx.Unlock()
	return err
}

// Read returns the next line from the controller. Acknowledgements
// and reset banners are dispatched to waiting writes as they pass
// through; every other line is handed to the caller as-is.
func (c *Conn) Read(p []byte) (n int, err error) {
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	if c.leftover != nil {
		if len(p) < len(c.leftover) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.leftover)
		c.leftover = nil
		return n, nil
	}
	if !c.scan.Scan() {
		if err := c.scan.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	data := c.scan.Bytes()

	if bytes.Equal(data, []byte("ok")) {
		select {
		case c.ackCh <- nil:
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("error:")) {
		select {
		case c.ackCh <- errors.New(strings.TrimSpace(string(data))):
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("Grbl")) {
		// startup banner, the controller rebooted
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}

	if len(p) < len(data) {
		c.leftover = data
		return 0, io.ErrShortBuffer
	}

	return copy(p, data), nil
}
