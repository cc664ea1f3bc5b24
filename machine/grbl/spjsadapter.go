package grbl

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter drives a grbl controller through a Serial Port JSON
// Server. SPJS handles flow control and status polling itself, so the
// adapter only tracks command completion and collects reports.
type SPJSAdapter struct {
	sp   *spjs.SPJS
	port string

	cmds    chan command
	waiting map[string]chan error

	mx    sync.Mutex
	last  machine.State
	state chan machine.State

	probes      []machine.ProbeResult
	getProbes   chan []machine.ProbeResult
	resetProbes chan struct{}
}

var _ machine.Adapter = &SPJSAdapter{}

type command struct {
	spjs.JSON
	wait chan error
}

func NewSPJSAdapter(sp *spjs.SPJS, port string) *SPJSAdapter {
	a := &SPJSAdapter{
		sp:          sp,
		port:        port,
		waiting:     make(map[string]chan error, 100),
		cmds:        make(chan command, 1000),
		state:       make(chan machine.State),
		getProbes:   make(chan []machine.ProbeResult),
		resetProbes: make(chan struct{}),
	}
	go a.loop()

	return a
}

// Probes returns the probe reports collected since the last
// ResetProbes call.
func (a *SPJSAdapter) Probes() []machine.ProbeResult { return <-a.getProbes }

// ResetProbes discards all collected probe reports.
func (a *SPJSAdapter) ResetProbes() { a.resetProbes <- struct{}{} }

func (a *SPJSAdapter) CurrentState() machine.State {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.last
}

func (a *SPJSAdapter) setState(state machine.State) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.last = state
	select {
	case a.state <- state:
	default:
	}
}

func (a *SPJSAdapter) handleData(data string) {
	if len(data) == 0 {
		return
	}
	switch data[0] {
	case '<':
		stat, err := parseStatus(a.last, data)
		if err != nil {
			log.Println("ERROR: parse status:", err)
			return
		}
		a.setState(*stat)
	case '[':
		if !strings.HasPrefix(data, "[PRB:") {
			// feedback like [MSG:...], not a probe report
			return
		}
		prb, err := parseProbe(data)
		if err != nil {
			log.Println("ERROR: parse:", err)
			return
		}
		a.probes = append(a.probes, *prb)
	}
}

func (a *SPJSAdapter) loop() {
	for {
		select {
		case a.getProbes <- a.probes:
		case <-a.resetProbes:
			a.probes = nil
		case resp := <-a.sp.Messages():
			switch msg := resp.(type) {
			case *spjs.DataFrame:
				a.handleData(msg.Data)
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					// the controller was reset, fail all waiters
					for key, ch := range a.waiting {
						ch <- machine.ErrReset
						delete(a.waiting, key)
					}
				case "Complete":
					if a.waiting[msg.ID] != nil {
						a.waiting[msg.ID] <- nil
						delete(a.waiting, msg.ID)
					}
				}
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != a.port {
						continue
					}
					if !port.IsOpen {
						a.sp.WriteString("open " + a.port + " grbl 115200")
					}
				}
			}
		case msg := <-a.cmds:
			a.sp.SendJSON(msg.JSON)
			if msg.wait != nil {
				a.waiting[msg.Data[len(msg.Data)-1].ID] = msg.wait
			}
		}
	}
}

func (a *SPJSAdapter) State() chan machine.State {
	return a.state
}

// ReadFrom queues lines in batches of 100 and returns once SPJS
// reports the final line complete.
func (a *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	var wait chan error
	for {
		var j spjs.JSON
		j.Port = a.port
		for scan.Scan() {
			n += int64(len(scan.Bytes()))
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(scan.Text()) + "\n",
				ID:   nextID(),
			})
			if len(j.Data) == 100 {
				break
			}
		}
		if len(j.Data) == 0 {
			break
		}
		wait = make(chan error, 1)
		a.cmds <- command{JSON: j, wait: wait}
	}
	if err := scan.Err(); err != nil {
		return n, err
	}

	if wait == nil {
		return 0, nil
	}

	return n, <-wait
}

func (a *SPJSAdapter) WriteByte(b byte) error {
	_, err := a.Write([]byte(string(b) + "\n"))
	return err
}

func (a *SPJSAdapter) Write(p []byte) (int, error) {
	n, err := a.ReadFrom(bytes.NewBuffer(p))
	return int(n), err
}
