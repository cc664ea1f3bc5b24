package grbl

import (
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gprobe/machine"
)

// statusInterval is how often the controller is polled for a status
// report.
const statusInterval = 500 * time.Millisecond

// SerialAdapter drives a grbl controller over a direct serial
// connection. It polls for status reports and collects probe reports
// between ResetProbes and Probes calls.
type SerialAdapter struct {
	*Conn

	mx    sync.Mutex
	last  machine.State
	state chan machine.State
	lines chan string

	probes      []machine.ProbeResult
	getProbes   chan []machine.ProbeResult
	resetProbes chan struct{}
}

var _ machine.Adapter = &SerialAdapter{}

func NewSerialAdapter(rw io.ReadWriter) *SerialAdapter {
	conn := NewConn(rw)
	go func() {
		t := time.NewTicker(statusInterval)
		defer t.Stop()
		for {
			select {
			case <-conn.closeCh:
				return
			case <-t.C:
				conn.WriteByte('?')
			}
		}
	}()
	a := &SerialAdapter{
		Conn: conn,

		state:       make(chan machine.State),
		getProbes:   make(chan []machine.ProbeResult),
		resetProbes: make(chan struct{}),
		lines:       make(chan string),
	}
	go a.loop()
	go a.pump()

	return a
}

// Probes returns the probe reports collected since the last
// ResetProbes call.
func (a *SerialAdapter) Probes() []machine.ProbeResult { return <-a.getProbes }

// ResetProbes discards all collected probe reports.
func (a *SerialAdapter) ResetProbes() { a.resetProbes <- struct{}{} }

// pump keeps reading the port. Conn.Read dispatches acknowledgements
// internally; everything else is a report line for loop.
func (a *SerialAdapter) pump() {
	buf := make([]byte, 1024)
	for {
		n, err := a.Read(buf)
		if err == io.EOF || err == io.ErrClosedPipe {
			return
		}
		if err != nil {
			log.Println("ERROR: read from port: ", err)
			time.Sleep(time.Second)
			continue
		}
		a.lines <- string(buf[:n])
	}
}

func (a *SerialAdapter) State() chan machine.State { return a.state }

func (a *SerialAdapter) CurrentState() machine.State {
	a.mx.Lock()
	state := a.last
	a.mx.Unlock()
	return state
}

func (a *SerialAdapter) loop() {
	for {
		select {
		case <-a.resetProbes:
			a.probes = nil
		case a.getProbes <- a.probes:
		case line := <-a.lines:
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case '<':
				stat, err := parseStatus(a.last, line)
				if err != nil {
					log.Println("ERROR: parse status:", err)
					continue
				}
				a.mx.Lock()
				a.last = *stat
				a.mx.Unlock()
				select {
				case a.state <- a.last:
				default:
				}
			case '[':
				if !strings.HasPrefix(line, "[PRB:") {
					// feedback like [MSG:...], not a probe report
					continue
				}
				prb, err := parseProbe(line)
				if err != nil {
					log.Println("ERROR: parse:", err)
					continue
				}
				a.probes = append(a.probes, *prb)
			}
		}
	}
}
