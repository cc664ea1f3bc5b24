package grbl

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/mastercactapus/gprobe/machine"
	"github.com/stretchr/testify/assert"
)

// scriptedPort fakes the controller end of a serial link. Every full
// line written consumes the next scripted reply, defaulting to ok.
type scriptedPort struct {
	mx      sync.Mutex
	wrote   []string
	replies []string

	lines chan string
}

func newScriptedPort(replies ...string) *scriptedPort {
	return &scriptedPort{replies: replies, lines: make(chan string, 100)}
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mx.Lock()
	p.wrote = append(p.wrote, string(b))
	reply := "ok\n"
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
	}
	p.mx.Unlock()
	if bytes.HasSuffix(b, []byte("\n")) {
		p.lines <- reply
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	line, ok := <-p.lines
	if !ok {
		return 0, io.EOF
	}
	return copy(b, line), nil
}

func (p *scriptedPort) written() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string(nil), p.wrote...)
}

// newTestConn wires a Conn to the port with a read pump running, the
// way an adapter would.
func newTestConn(t *testing.T, port *scriptedPort) *Conn {
	c := NewConn(port)
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := c.Read(buf); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { close(port.lines) })
	return c
}

func TestConn_ReadFrom(t *testing.T) {
	port := newScriptedPort()
	c := newTestConn(t, port)

	n, err := c.ReadFrom(strings.NewReader("G0 X1\nG0 X2\n"))
	assert.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, []string{"G0 X1\n", "G0 X2\n"}, port.written())
}

func TestConn_ReadFrom_Empty(t *testing.T) {
	port := newScriptedPort()
	c := newTestConn(t, port)

	n, err := c.ReadFrom(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, port.written())
}

func TestConn_Write(t *testing.T) {
	port := newScriptedPort()
	c := newTestConn(t, port)

	n, err := c.Write([]byte("$H\n"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"$H\n"}, port.written())
}

func TestConn_Write_Error(t *testing.T) {
	port := newScriptedPort("error:9\n")
	c := newTestConn(t, port)

	_, err := c.Write([]byte("G38.3 Z-10 F300\n"))
	assert.EqualError(t, err, "error:9")
}

func TestConn_Write_Reset(t *testing.T) {
	port := newScriptedPort("Grbl 1.1f ['$' for help]\n")
	c := newTestConn(t, port)

	_, err := c.Write([]byte("$H\n"))
	assert.Equal(t, machine.ErrReset, err)
}

func TestConn_WriteByte(t *testing.T) {
	port := newScriptedPort()
	c := newTestConn(t, port)

	assert.NoError(t, c.WriteByte('?'))
	assert.Equal(t, []string{"?"}, port.written())
}

func TestConn_Close(t *testing.T) {
	port := newScriptedPort()
	c := NewConn(port)
	assert.NoError(t, c.Close())

	_, err := c.Write([]byte("G0 X1\n"))
	assert.Equal(t, io.ErrClosedPipe, err)
	assert.Equal(t, io.ErrClosedPipe, c.WriteByte('?'))
	assert.Empty(t, port.written())
}

func TestSplitLinesKeepN(t *testing.T) {
	adv, tok, err := splitLinesKeepN([]byte("G0 X1\nG0 X2\n"), false)
	assert.NoError(t, err)
	assert.Equal(t, 6, adv)
	assert.Equal(t, []byte("G0 X1\n"), tok)

	// incomplete line, wait for more data
	adv, tok, err = splitLinesKeepN([]byte("G0 X1"), false)
	assert.NoError(t, err)
	assert.Equal(t, 0, adv)
	assert.Nil(t, tok)

	adv, tok, err = splitLinesKeepN([]byte("G0 X1"), true)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, 5, adv)
	assert.Equal(t, []byte("G0 X1"), tok)

	adv, tok, err = splitLinesKeepN(nil, true)
	assert.NoError(t, err)
	assert.Equal(t, 0, adv)
	assert.Nil(t, tok)
}
