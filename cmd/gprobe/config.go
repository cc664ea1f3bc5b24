package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/probe"
	"gopkg.in/yaml.v3"
)

// Config describes the machine, loaded from the YAML config file.
// Missing values keep their defaults.
type Config struct {
	// Min and Max bound machine travel, in machine coordinates.
	Min coord.Point `yaml:"min"`
	Max coord.Point `yaml:"max"`

	Probe      ProbeConfig      `yaml:"probe"`
	Mesh       MeshConfig       `yaml:"mesh"`
	ToolChange ToolChangeConfig `yaml:"tool_change"`
}

// ProbeConfig holds the persistent probing parameters.
type ProbeConfig struct {
	Speed             float64 `yaml:"speed"`
	LiftSpeed         float64 `yaml:"lift_speed"`
	MaxDistance       float64 `yaml:"max_distance"`
	Samples           int     `yaml:"samples"`
	SampleRetractDist float64 `yaml:"sample_retract_dist"`
	Tolerance         float64 `yaml:"samples_tolerance"`
	Retries           int     `yaml:"samples_tolerance_retries"`
	Result            string  `yaml:"samples_result"`

	// sensor position relative to the tool
	XOffset float64 `yaml:"x_offset"`
	YOffset float64 `yaml:"y_offset"`
	ZOffset float64 `yaml:"z_offset"`
}

// MeshConfig holds the default surface mesh area.
type MeshConfig struct {
	DistanceX    float64 `yaml:"distance_x"`
	DistanceY    float64 `yaml:"distance_y"`
	Granularity  float64 `yaml:"granularity"`
	TravelHeight float64 `yaml:"travel_height"`
	Speed        float64 `yaml:"speed"`
}

// ToolChangeConfig holds the tool change locations. Tool changes are
// refused until it is configured.
type ToolChangeConfig struct {
	ChangePos    coord.Point `yaml:"change_pos"`
	ProbePos     coord.Point `yaml:"probe_pos"`
	TravelHeight float64     `yaml:"travel_height"`
}

func defaultConfig() Config {
	p := probe.DefaultParams()
	return Config{
		// grbl machines home to the corner at 0,0,0 and travel negative
		Min: coord.Point{X: -1000, Y: -1000, Z: -1000},

		Probe: ProbeConfig{
			Speed:             p.Speed,
			LiftSpeed:         p.LiftSpeed,
			MaxDistance:       p.MaxDistance,
			Samples:           p.Samples,
			SampleRetractDist: p.SampleRetractDist,
			Tolerance:         p.Tolerance,
			Retries:           p.Retries,
			Result:            string(p.Result),
		},
		Mesh: MeshConfig{
			DistanceX:    100,
			DistanceY:    100,
			Granularity:  10,
			TravelHeight: 5,
			Speed:        25,
		},
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) probeParams() probe.Params {
	return probe.Params{
		Speed:             cfg.Probe.Speed,
		LiftSpeed:         cfg.Probe.LiftSpeed,
		MaxDistance:       cfg.Probe.MaxDistance,
		Samples:           cfg.Probe.Samples,
		SampleRetractDist: cfg.Probe.SampleRetractDist,
		Tolerance:         cfg.Probe.Tolerance,
		Retries:           cfg.Probe.Retries,
		Result:            probe.ResultMode(cfg.Probe.Result),
	}
}

func (cfg Config) probeOffsets() coord.Point {
	return coord.Point{X: cfg.Probe.XOffset, Y: cfg.Probe.YOffset, Z: cfg.Probe.ZOffset}
}

func (cfg Config) meshOptions() machine.MeshOptions {
	return machine.MeshOptions{
		DistanceX:    cfg.Mesh.DistanceX,
		DistanceY:    cfg.Mesh.DistanceY,
		Granularity:  cfg.Mesh.Granularity,
		TravelHeight: cfg.Mesh.TravelHeight,
		Speed:        cfg.Mesh.Speed,
	}
}

func (cfg Config) toolChangeOptions() (machine.ToolChangeOptions, error) {
	if cfg.ToolChange == (ToolChangeConfig{}) {
		return machine.ToolChangeOptions{}, errors.New("tool_change is not configured")
	}
	return machine.ToolChangeOptions{
		ChangePos:    cfg.ToolChange.ChangePos,
		ProbePos:     cfg.ToolChange.ProbePos,
		TravelHeight: cfg.ToolChange.TravelHeight,
	}, nil
}
