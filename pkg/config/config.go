// Package config collects the settings of the flight daemon and the ground
// tools from defaults, DOWNLINK_* environment variables, command line
// flags and an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/downlink.go/pkg/downlink"
	"github.com/robotalks/downlink.go/pkg/link"
	"github.com/robotalks/downlink.go/pkg/radio"
)

// NodeType is the link node type of a downlink.
const NodeType = "downlink"

// Config is the flight daemon configuration.
type Config struct {
	// File is the YAML file loaded by Load.
	File string `yaml:"-"`

	NodeID       string `yaml:"node-id"`
	Description  string `yaml:"description"`
	SpacecraftID uint8  `yaml:"spacecraft-id"`
	ResetCount   uint16 `yaml:"reset-count"`

	// LinkURL is the MQTT broker carrying commands and status,
	// e.g. mqtt://host:port/topic-prefix. Empty disables the link.
	LinkURL string `yaml:"link"`
	// SinkURL receives the transmitted symbols, see sink.Open.
	SinkURL string `yaml:"sink"`
	// StorePath is the persistent flag file. Empty keeps flags in memory.
	StorePath string `yaml:"store"`
	// HalfDuplex reports the standby partner as unavailable, so the
	// transmitter pauses for a receive window after each sequence.
	HalfDuplex bool `yaml:"half-duplex"`

	Timing downlink.Timing `yaml:"timing"`
	Radio  radio.SimConfig `yaml:"radio"`
}

var defaultConfig = Config{
	SpacecraftID: 1,
	LinkURL:      "mqtt://localhost:1883/sat/",
	Timing:       downlink.DefaultTiming(),
	Radio:        radio.DefaultSimConfig(),
}

func init() {
	defaultConfig.NodeID = MachineID()
	applyEnv(&defaultConfig, os.Getenv)
}

func applyEnv(c *Config, getenv func(string) string) {
	if val := getenv("DOWNLINK_ID"); val != "" {
		c.NodeID = val
	}
	if val := getenv("DOWNLINK_LINK_URL"); val != "" {
		c.LinkURL = val
	}
	if val := getenv("DOWNLINK_SINK_URL"); val != "" {
		c.SinkURL = val
	}
	if val := getenv("DOWNLINK_STORE"); val != "" {
		c.StorePath = val
	}
	if val := getenv("DOWNLINK_CONFIG"); val != "" {
		c.File = val
	}
}

// MachineID retrieves the unique ID identifying the machine, or the host
// name when it is not available.
func MachineID() string {
	id, err := machineid.ProtectedID(NodeType)
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id: %v", err)
	host, _ := os.Hostname()
	return host
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "YAML config file")
	flag.StringVar(&defaultConfig.NodeID, "id", defaultConfig.NodeID, "Node ID")
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "MQTT broker URL for commands and status")
	flag.StringVar(&defaultConfig.SinkURL, "sink", defaultConfig.SinkURL, "Symbol sink URL")
	flag.StringVar(&defaultConfig.StorePath, "store", defaultConfig.StorePath, "Persistent flag file")
	flag.BoolVar(&defaultConfig.HalfDuplex, "half-duplex", defaultConfig.HalfDuplex, "No standby receiver")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load overlays the YAML file c.File on c. Keys absent from the file keep
// their current values; unknown keys are an error.
func (c *Config) Load() error {
	if c.File == "" {
		return nil
	}
	data, err := ioutil.ReadFile(c.File)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%s: %v", c.File, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("node id must be specified")
	}
	if c.LinkURL != "" {
		if _, err := url.Parse(c.LinkURL); err != nil {
			return fmt.Errorf("invalid link URL: %v", err)
		}
	}
	t := c.Timing
	for name, d := range map[string]time.Duration{
		"idle-period":      t.IdlePeriod,
		"beacon-timeout":   t.BeaconTimeout,
		"science-duration": t.ScienceDuration,
		"rx-window":        t.RxWindow,
		"collect-period":   t.CollectPeriod,
		"post-timeout":     t.PostTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("timing %s must be positive", name)
		}
	}
	if t.SettleDelay < 0 || t.SilenceWindow < 0 {
		return errors.New("timing delays must not be negative")
	}
	r := c.Radio
	switch {
	case r.Depth <= 0:
		return errors.New("radio depth must be positive")
	case r.LowWater < 0 || r.LowWater >= r.Depth:
		return fmt.Errorf("radio low-water %d must be within depth %d", r.LowWater, r.Depth)
	case r.WordsPerTick <= 0 || r.Tick <= 0:
		return errors.New("radio rate must be positive")
	}
	return nil
}

// NodeInfo describes this node on the link.
func (c *Config) NodeInfo() link.NodeInfo {
	return link.NodeInfo{
		Ref:  link.NodeRef{Type: NodeType, ID: c.NodeID},
		Meta: link.NodeMeta{Description: c.Description},
	}
}

// MustLoad loads and validates c and fails on error.
func (c *Config) MustLoad() *Config {
	if err := c.Load(); err != nil {
		log.Fatalln(err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalln(err)
	}
	return c
}
