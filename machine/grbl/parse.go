package grbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
)

// parseCoords parses a comma separated X,Y,Z triple the way grbl
// reports positions in status and probe messages.
func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, fmt.Errorf("want 3 axis values, got %d", len(parts))
	}
	for i, dst := range []*float64{&p.X, &p.Y, &p.Z} {
		*dst, err = strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// parseProbe parses a report like [PRB:1.000,2.000,3.000:1]. The
// trailing flag is 1 when the probe tripped before running out of
// travel.
func parseProbe(data string) (*machine.ProbeResult, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "PRB" {
		return nil, errors.New("unknown PUSH message: " + data)
	}

	var res machine.ProbeResult
	var err error
	res.Point, err = parseCoords(parts[1])
	if err != nil {
		return nil, err
	}
	res.Valid = parts[2] == "1"
	return &res, nil
}

// parseStatus parses a status report on top of the previous state;
// fields like WCO are only reported when they change.
func parseStatus(stat machine.State, data string) (*machine.State, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.Status = parts[0]

	// the pin field is omitted entirely when no pins are active, so the
	// carried-over value must not stick
	stat.Probe = false

	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		case "Pn":
			stat.Probe = strings.Contains(sParts[1], "P")
		}
		if err != nil {
			return nil, err
		}
	}
	stat.Time = time.Now()
	return &stat, nil
}
