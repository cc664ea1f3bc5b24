// Package spjs is a client for the Serial Port JSON Server websocket
// protocol. It keeps one connection open, reconnecting as needed, and
// delivers decoded server messages over a channel.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// reconnectDelay is how long to wait after a failed dial.
const reconnectDelay = 3 * time.Second

type SPJS struct {
	url string

	outgoing chan message
	incoming chan interface{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

// DataFrame is a line of output from a serial port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

// CmdStatus reports queue progress for a previously sent command.
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}

// SerialPortList is the server's inventory of attached ports, sent on
// connect and in response to a list command.
type SerialPortList struct {
	SerialPorts []SerialPort
}

type SerialPort struct {
	Name            string
	Friendly        string
	IsOpen          bool
	IsPrimary       bool
	Baud            int
	BufferAlgorithm string
	Ver             float64
}

func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:      url,
		outgoing: make(chan message, 1000),
		incoming: make(chan interface{}, 1000),
	}

	go sp.loop()

	return sp
}

// Messages returns the stream of decoded server messages. Values are
// pointers to DataFrame, CmdStatus, ErrorMessage, or SerialPortList.
func (sp *SPJS) Messages() chan interface{} {
	return sp.incoming
}

// decodeMessage picks the concrete type for a server message by its
// distinguishing field. Order matters, a CmdStatus also carries a D
// field.
func decodeMessage(data []byte, fields map[string]json.RawMessage) (interface{}, error) {
	for _, probe := range []struct {
		field string
		val   interface{}
	}{
		{"Error", &ErrorMessage{}},
		{"SerialPorts", &SerialPortList{}},
		{"Type", &CmdStatus{}},
		{"D", &DataFrame{}},
	} {
		if fields[probe.field] == nil {
			continue
		}
		return probe.val, json.Unmarshal(data, probe.val)
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Println("ERROR: read:", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// command echo, not JSON
			continue
		}
		var fields map[string]json.RawMessage
		err = json.Unmarshal(data, &fields)
		if err != nil {
			log.Println("ERROR: read:", err)
			continue
		}
		val, err := decodeMessage(data, fields)
		if err != nil {
			log.Println("ERROR: parse:", err)
			continue
		}
		sp.incoming <- val
	}
}

// loop owns the websocket. A payload that fails to send is retried on
// the next connection, so callers still get completion in order.
func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		log.Println("Connecting to", sp.url)
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			time.Sleep(reconnectDelay)
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh the port list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: send:", err)
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

// JSON is the sendjson command payload, a batch of lines for one
// port. Each line carries an ID so its completion can be matched up.
type JSON struct {
	Port string `json:"P"`
	Data []Data
}

type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// SendJSON queues a sendjson command and blocks until it has been
// handed to the server.
func (sp *SPJS) SendJSON(v JSON) {
	data, err := json.Marshal(v)
	if err != nil {
		// only reachable with a broken payload type
		log.Panicln("ERROR: sendjson (marshal):", err)
		return
	}

	ch := make(chan struct{})
	sp.outgoing <- message{done: ch, payload: append([]byte("sendjson "), data...)}
	<-ch
}

// WriteString queues a raw command line and blocks until it has been
// handed to the server.
func (sp *SPJS) WriteString(data string) {
	ch := make(chan struct{})
	sp.outgoing <- message{done: ch, payload: []byte(data)}
	<-ch
}
