package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	gocnc "github.com/joushou/gocnc/gcode"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/probe"
)

// meshFile is where the latest surface mesh is persisted, under the
// data dir, so leveling survives a restart.
const meshFile = "mesh.json"

type api struct {
	http.Handler
	m       *machine.Machine
	cfg     Config
	dataDir string
	sse     *sse.Server

	// cmd serializes long-running machine commands. Hold, resume, and
	// reset bypass it so they work mid-run.
	cmd sync.Mutex

	mx         sync.Mutex
	meshPoints []coord.Point
	lastTool   *coord.Point
}

func newAPI(m *machine.Machine, cfg Config, dir string, contacts chan coord.Point) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       m,
		cfg:     cfg,
		dataDir: dir,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}
	a.loadMesh()

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/probe", a.probe).Methods("POST")
	r.HandleFunc("/api/probe/accuracy", a.accuracy).Methods("POST")
	r.HandleFunc("/api/probe/query", a.query).Methods("GET")
	r.HandleFunc("/api/probe/mesh", a.mesh).Methods("POST")
	r.HandleFunc("/api/run", a.run).Methods("POST")
	r.HandleFunc("/api/home", a.home).Methods("POST")
	r.HandleFunc("/api/hold", a.hold).Methods("POST")
	r.HandleFunc("/api/resume", a.resume).Methods("POST")
	r.HandleFunc("/api/reset", a.reset).Methods("POST")
	r.HandleFunc("/api/toolchange", a.toolChange).Methods("POST")
	r.HandleFunc("/api/state", a.state).Methods("GET")

	r.PathPrefix("/events/").Handler(a.sse)

	go a.stateLoop()
	go a.holdLoop()
	go a.contactLoop(contacts)

	return a
}

// stateLoop forwards status reports to SSE subscribers.
func (a *api) stateLoop() {
	for state := range a.m.State() {
		data, err := json.Marshal(state)
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			continue
		}
		a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
	}
}

// holdLoop forwards operator prompts. It must always drain HoldMessage
// or tool changes stall waiting on the send.
func (a *api) holdLoop() {
	for msg := range a.m.HoldMessage() {
		a.sse.SendMessage("/events/hold", sse.SimpleMessage(msg))
	}
}

func (a *api) contactLoop(contacts chan coord.Point) {
	for p := range contacts {
		data, err := json.Marshal(p)
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			continue
		}
		a.sse.SendMessage("/events/contact", sse.SimpleMessage(string(data)))
	}
}

// acquire takes the command lock, or reports a conflict when another
// command holds it.
func (a *api) acquire(w http.ResponseWriter) bool {
	if !a.cmd.TryLock() {
		http.Error(w, "another command is already running", http.StatusConflict)
		return false
	}
	return true
}

func (a *api) fail(w http.ResponseWriter, op string, err error) {
	log.Printf("ERROR: %s: %+v", op, err)
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, probe.ErrInvalidDirection), errors.Is(err, probe.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, probe.ErrNotHomed), errors.Is(err, probe.ErrSessionState):
		code = http.StatusConflict
	}
	http.Error(w, err.Error(), code)
}

func (a *api) send(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("ERROR: encode:", err)
	}
}

// parseOverride collects per-request probe parameter overrides. Only
// parameters present in the request are set.
func parseOverride(req *http.Request) (probe.Override, error) {
	var ov probe.Override
	var err error
	parseF := func(param string) *float64 {
		if err != nil {
			return nil
		}
		s := req.FormValue(param)
		if s == "" {
			return nil
		}
		var v float64
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			err = fmt.Errorf("%s: %w", param, err)
			return nil
		}
		return &v
	}
	parseI := func(param string) *int {
		if err != nil {
			return nil
		}
		s := req.FormValue(param)
		if s == "" {
			return nil
		}
		var v int
		v, err = strconv.Atoi(s)
		if err != nil {
			err = fmt.Errorf("%s: %w", param, err)
			return nil
		}
		return &v
	}

	ov.Speed = parseF("speed")
	ov.LiftSpeed = parseF("lift_speed")
	ov.MaxDistance = parseF("max_distance")
	ov.Samples = parseI("samples")
	ov.SampleRetractDist = parseF("sample_retract_dist")
	ov.Tolerance = parseF("samples_tolerance")
	ov.Retries = parseI("samples_tolerance_retries")
	if s := req.FormValue("samples_result"); s != "" {
		mode := probe.ResultMode(s)
		ov.Result = &mode
	}
	return ov, err
}

func parseDirection(req *http.Request) (probe.Direction, error) {
	s := req.FormValue("direction")
	if s == "" {
		return probe.ZMinus, nil
	}
	return probe.ParseDirection(s)
}

func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	dir, err := parseDirection(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ov, err := parseOverride(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := a.m.Probe().Single(dir, ov)
	if err != nil {
		a.fail(w, "probe", err)
		return
	}
	a.send(w, pos)
}

func (a *api) accuracy(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	dir, err := parseDirection(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ov, err := parseOverride(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var count int
	if s := req.FormValue("count"); s != "" {
		count, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, "count: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := a.m.Probe().Accuracy(dir, ov, count)
	if err != nil {
		a.fail(w, "probe accuracy", err)
		return
	}
	a.send(w, res)
}

// query is deliberately not behind the command lock so the sensor can
// be checked while idle or mid-command.
func (a *api) query(w http.ResponseWriter, req *http.Request) {
	triggered, err := a.m.Probe().QueryTriggered()
	if err != nil {
		a.fail(w, "query probe", err)
		return
	}
	a.send(w, struct {
		Triggered bool `json:"triggered"`
	}{Triggered: triggered})
}

func (a *api) mesh(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	opt := a.cfg.meshOptions()
	ov, err := parseOverride(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opt.Override = ov
	opt.UseOffsets = req.FormValue("use_offsets") == "1"

	parse := func(param string, into *float64) {
		if err != nil {
			return
		}
		s := req.FormValue(param)
		if s == "" {
			return
		}
		var v float64
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			err = fmt.Errorf("%s: %w", param, err)
			return
		}
		*into = v
	}
	parse("distance_x", &opt.DistanceX)
	parse("distance_y", &opt.DistanceY)
	parse("granularity", &opt.Granularity)
	parse("travel_height", &opt.TravelHeight)
	parse("speed", &opt.Speed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pts, err := a.m.ProbeMesh(opt)
	if err != nil {
		a.fail(w, "probe mesh", err)
		return
	}

	a.mx.Lock()
	a.meshPoints = pts
	a.mx.Unlock()

	out := io.Writer(w)
	if ok, name := safePath(a.dataDir, meshFile); ok {
		os.MkdirAll(filepath.Dir(name), 0755)
		f, err := os.Create(name)
		if err != nil {
			log.Printf("ERROR: create '%s': %+v", name, err)
		} else {
			defer f.Close()
			out = io.MultiWriter(w, f)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(out).Encode(pts); err != nil {
		log.Println("ERROR: encode:", err)
	}
}

// loadMesh restores the persisted surface mesh, if any.
func (a *api) loadMesh() {
	ok, name := safePath(a.dataDir, meshFile)
	if !ok {
		return
	}
	data, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		log.Printf("ERROR: read '%s': %+v", name, err)
		return
	}
	if err := json.Unmarshal(data, &a.meshPoints); err != nil {
		log.Printf("ERROR: parse '%s': %+v", name, err)
	}
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return
	}

	prog, err := cleanProgram(string(data))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.URL.Query().Get("level") == "1" {
		a.mx.Lock()
		pts := a.meshPoints
		a.mx.Unlock()
		if len(pts) == 0 {
			http.Error(w, "no surface mesh probed", http.StatusConflict)
			return
		}
		_, err = a.m.ReadFromLevel(strings.NewReader(prog), a.cfg.Mesh.Granularity, pts)
	} else {
		_, err = a.m.ReadFrom(strings.NewReader(prog))
	}
	if err != nil {
		a.fail(w, "run", err)
	}
}

// cleanProgram normalizes an uploaded program to newline-terminated
// lines and rejects anything gocnc can't parse.
func cleanProgram(data string) (string, error) {
	var sb strings.Builder
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return "", errors.New("empty program")
	}
	if _, err := gocnc.Parse(strings.TrimSpace(sb.String())); err != nil {
		return "", fmt.Errorf("parse program: %w", err)
	}
	return sb.String(), nil
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	if err := a.m.Home(); err != nil {
		a.fail(w, "home", err)
	}
}

func (a *api) hold(w http.ResponseWriter, req *http.Request) {
	if err := a.m.Hold(); err != nil {
		a.fail(w, "hold", err)
	}
}

func (a *api) resume(w http.ResponseWriter, req *http.Request) {
	if err := a.m.Resume(); err != nil {
		a.fail(w, "resume", err)
	}
}

func (a *api) reset(w http.ResponseWriter, req *http.Request) {
	if err := a.m.Reset(); err != nil {
		a.fail(w, "reset", err)
	}
}

func (a *api) toolChange(w http.ResponseWriter, req *http.Request) {
	if !a.acquire(w) {
		return
	}
	defer a.cmd.Unlock()

	opt, err := a.cfg.toolChangeOptions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ov, err := parseOverride(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opt.Override = ov

	a.mx.Lock()
	opt.LastToolPos = a.lastTool
	a.mx.Unlock()

	pos, err := a.m.ToolChange(opt)
	if err != nil {
		a.fail(w, "tool change", err)
		return
	}

	a.mx.Lock()
	a.lastTool = pos
	a.mx.Unlock()
	a.send(w, pos)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	a.send(w, struct {
		machine.State
		Homed bool
	}{State: a.m.CurrentState(), Homed: a.m.Homed()})
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Println("invalid path '" + name + "'")
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Printf("ERROR: write '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Printf("ERROR: delete '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}
