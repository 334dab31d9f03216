// Package env provides common options to reach a fingerprint module.
package env

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/fpm"
	"github.com/robotalks/fpm.go/pkg/serial"
	"github.com/robotalks/fpm.go/pkg/transport"
)

// Config provides common options to open a module and talk to it.
type Config struct {
	// Port is a serial device or a transport URL, see transport.Config.
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
	// Timeout bounds the wait for each reply.
	Timeout time.Duration `toml:"timeout"`
	// SettleDelay is the pause between enrollment steps.
	SettleDelay time.Duration `toml:"settle_delay"`
	// MQTTURL is the broker used for bridge discovery and announcement.
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string `toml:"mqtt_url"`

	// File is an optional TOML file loaded by Load.
	File string `toml:"-"`
}

var defaultConfig = Config{
	Port:        serial.DefaultDevice,
	Baud:        serial.DefaultBaud,
	Timeout:     fpm.DefaultTimeout,
	SettleDelay: fpm.DefaultSettleDelay,
	MQTTURL:     "mqtt://localhost:1883/fpm/",
}

func init() {
	applyEnv(&defaultConfig, os.Getenv)
}

func applyEnv(c *Config, getenv func(string) string) {
	if val := getenv("FPM_PORT"); val != "" {
		c.Port = val
	}
	if val := getenv("FPM_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			c.Baud = baud
		} else {
			glog.Warningf("ignored FPM_BAUD=%q: %v", val, err)
		}
	}
	if val := getenv("FPM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeout = d
		} else {
			glog.Warningf("ignored FPM_TIMEOUT=%q: %v", val, err)
		}
	}
	if val := getenv("FPM_SETTLE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SettleDelay = d
		} else {
			glog.Warningf("ignored FPM_SETTLE=%q: %v", val, err)
		}
	}
	if val := getenv("FPM_MQTT_URL"); val != "" {
		c.MQTTURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial device or transport URL (sim://, mqtt://, ws://)")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Reply timeout")
	flag.DurationVar(&defaultConfig.SettleDelay, "settle", defaultConfig.SettleDelay, "Delay between enrollment steps")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "TOML config file")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load applies the config file given by -config to the default config and
// returns a copy. Flags on the command line take precedence over the file.
// It must be called after flag.Parse.
func Load() (*Config, error) {
	if defaultConfig.File != "" {
		explicit := make(map[string]string)
		flag.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
		if err := defaultConfig.LoadFile(defaultConfig.File); err != nil {
			return nil, err
		}
		for name, val := range explicit {
			flag.Set(name, val)
		}
	}
	return NewConfig(), nil
}

// LoadFile overrides the config with values present in a TOML file.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		glog.Warningf("%s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Transport returns the transport configuration.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Port:        c.Port,
		Baud:        c.Baud,
		ReadTimeout: c.Timeout,
	}
}

// Open opens the configured transport.
func (c *Config) Open() (io.ReadWriteCloser, error) {
	return transport.Open(c.Transport())
}

// NewClient creates a Client on rw with the configured timing. Through a
// bridge the reply timeout is extended by transport.RemoteMargin.
func (c *Config) NewClient(rw io.ReadWriter) *fpm.Client {
	client := fpm.NewClient(rw)
	client.Timeout = transport.ReplyTimeout(c.Port, c.Timeout)
	client.SettleDelay = c.SettleDelay
	return client
}

// MustOpen opens the configured transport and exits on error.
func (c *Config) MustOpen() io.ReadWriteCloser {
	rw, err := c.Open()
	if err != nil {
		glog.Exitln(err)
	}
	return rw
}

// MachineID retrieves the unique ID identifying the machine.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		glog.Warningf("machine ID unavailable: %v", err)
		host, _ := os.Hostname()
		return host
	}
	return id
}
