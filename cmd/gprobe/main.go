package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/tarm/serial"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/machine/grbl"
	"github.com/mastercactapus/gprobe/spjs"
)

func main() {
	log.SetFlags(log.Lshortfile)

	port := flag.String("port", "/dev/ttyUSB0", "Serial port path (or name if using SPJS).")
	baud := flag.Int("baud", 115200, "Serial port baud rate.")
	spjsURL := flag.String("spjs", "", "Websocket URL of an SPJS server; empty opens the port directly.")
	addr := flag.String("addr", ":9091", "Address to bind the HTTP server to.")
	dir := flag.String("data-dir", "./data", "Data directory to use.")
	configFile := flag.String("config", "", "Path to the YAML machine config.")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	var adapter machine.Adapter
	if *spjsURL != "" {
		adapter = grbl.NewSPJSAdapter(spjs.NewSPJS(*spjsURL), *port)
	} else {
		sp, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
		if err != nil {
			log.Fatal(err)
		}
		adapter = grbl.NewSerialAdapter(sp)
	}

	// contact events feed the SSE stream; drop them when nobody keeps up
	contacts := make(chan coord.Point, 16)

	m, err := machine.NewMachine(machine.Config{
		Adapter:       adapter,
		Min:           cfg.Min,
		Max:           cfg.Max,
		ProbeDefaults: cfg.probeParams(),
		ProbeOffsets:  cfg.probeOffsets(),
		OnContact: func(p coord.Point) {
			select {
			case contacts <- p:
			default:
			}
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	api := newAPI(m, cfg, *dir, contacts)

	err = http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}
