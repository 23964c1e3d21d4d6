package clightning

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elementsproject/holdinvoice/hold"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/pelletier/go-toml/v2"
)

const (
	dbName                    = "holdinvoice.db"
	defaultConfigFileName     = "holdinvoice.conf"
	defaultHoldinvoiceDir     = "holdinvoice"
	clnConfigFileName         = "config"
	clnCltvDeltaKey           = "cltv-delta"
	BackendDatastore          = "datastore"
	BackendBbolt              = "bbolt"
	unsetCltvDeltaOptionValue = -1
)

type Config struct {
	LightningDir   string
	HoldinvoiceDir string
	DbPath         string
	CltvDelta      uint32
	PollInterval   time.Duration
	FailurePolicy  hold.FailurePolicy
	Backend        string
	Namespace      string
}

func (c Config) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// Params returns the hold parameters of this config.
func (c Config) Params() hold.Params {
	return hold.Params{
		CltvDelta:     c.CltvDelta,
		PollInterval:  c.PollInterval,
		FailurePolicy: c.FailurePolicy,
	}
}

// SetLightningDir sets the cln data directory of the network. Falls back to
// the current working directory of the plugin.
func SetLightningDir(dir string) Processor {
	return func(c *Config) (*Config, error) {
		if dir != "" {
			c.LightningDir = dir
			return c, nil
		}
		var err error
		c.LightningDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SetHoldinvoicePaths sets the plugin dir and the db path.
// Path to the plugin dir: `<lightning-dir>/holdinvoice`.
// Path to the db: `<lightning-dir>/holdinvoice/holdinvoice.db`.
func SetHoldinvoicePaths() Processor {
	return func(c *Config) (*Config, error) {
		c.HoldinvoiceDir = filepath.Join(c.LightningDir, defaultHoldinvoiceDir)
		c.DbPath = filepath.Join(c.HoldinvoiceDir, dbName)
		return c, nil
	}
}

// ReadClnConfigFile reads the cltv-delta from the cln config files, the one
// in the base dir first, then the one of the network. Lines other than
// `cltv-delta=<n>` are ignored, a malformed value is an error.
func ReadClnConfigFile() Processor {
	return func(c *Config) (*Config, error) {
		paths := []string{
			filepath.Join(filepath.Dir(c.LightningDir), clnConfigFileName),
			filepath.Join(c.LightningDir, clnConfigFileName),
		}
		for _, path := range paths {
			delta, ok, err := readClnCltvDelta(path)
			if err != nil {
				return nil, err
			}
			if ok {
				c.CltvDelta = delta
			}
		}
		return c, nil
	}
}

func readClnCltvDelta(path string) (uint32, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	var delta uint32
	var found bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.TrimSpace(key) != clnCltvDeltaKey {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return 0, false, fmt.Errorf("malformed %s in %s: %w", clnCltvDeltaKey, path, err)
		}
		delta = uint32(n)
		found = true
	}
	if err := scanner.Err(); err != nil {
		return 0, false, err
	}
	return delta, found, nil
}

// ReadFromFile reads the plugin config toml file from the plugin dir.
func ReadFromFile() Processor {
	return func(c *Config) (*Config, error) {
		data, err := os.ReadFile(filepath.Join(c.HoldinvoiceDir, defaultConfigFileName))
		if os.IsNotExist(err) {
			return c, nil
		}
		if err != nil {
			return nil, err
		}

		var fileConf struct {
			CltvDelta     *uint32
			PollInterval  string
			FailurePolicy string
			Backend       string
			Namespace     string
			DbPath        string
		}
		err = toml.Unmarshal(data, &fileConf)
		if err != nil {
			return nil, err
		}

		if fileConf.CltvDelta != nil {
			c.CltvDelta = *fileConf.CltvDelta
		}
		if fileConf.PollInterval != "" {
			c.PollInterval, err = time.ParseDuration(fileConf.PollInterval)
			if err != nil {
				return nil, fmt.Errorf("malformed PollInterval: %w", err)
			}
		}
		if fileConf.FailurePolicy != "" {
			c.FailurePolicy = hold.FailurePolicy(fileConf.FailurePolicy)
		}
		if fileConf.Backend != "" {
			c.Backend = fileConf.Backend
		}
		if fileConf.Namespace != "" {
			c.Namespace = fileConf.Namespace
		}
		if fileConf.DbPath != "" {
			c.DbPath = fileConf.DbPath
		}
		return c, nil
	}
}

type IntOptionGetter interface {
	GetIntOption(name string) (int, error)
}

// OverrideFromOption applies the `holdinvoice-cltv-delta` plugin option if
// it is set.
func OverrideFromOption(options IntOptionGetter) Processor {
	return func(c *Config) (*Config, error) {
		if options == nil {
			return c, nil
		}
		delta, err := options.GetIntOption(cltvDeltaOption)
		if err != nil {
			log.Debugf("option %s: %v", cltvDeltaOption, err)
			return c, nil
		}
		if delta == unsetCltvDeltaOptionValue {
			return c, nil
		}
		if delta <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %d", cltvDeltaOption, delta)
		}
		c.CltvDelta = uint32(delta)
		return c, nil
	}
}

func Validate() Processor {
	return func(c *Config) (*Config, error) {
		if err := c.Params().Validate(); err != nil {
			return nil, err
		}
		switch c.Backend {
		case BackendDatastore, BackendBbolt:
		default:
			return nil, fmt.Errorf("unknown backend %q", c.Backend)
		}
		return c, nil
	}
}

func GetConfig(lightningDir string, options IntOptionGetter) (*Config, error) {
	pl := &Pipeline{processors: []Processor{}}
	pl = pl.
		Add(SetLightningDir(lightningDir)).
		Add(SetHoldinvoicePaths()).
		Add(ReadClnConfigFile()).
		Add(ReadFromFile()).
		Add(OverrideFromOption(options)).
		Add(Validate())

	return pl.Run()
}

type Processor func(*Config) (*Config, error)

type Pipeline struct {
	processors []Processor
}

func (p *Pipeline) Add(pr Processor) *Pipeline {
	p.processors = append(p.processors, pr)
	return p
}

func (p *Pipeline) Run() (*Config, error) {
	var err error
	c := &Config{
		CltvDelta:     hold.DefaultCltvDelta,
		PollInterval:  hold.DefaultPollInterval,
		FailurePolicy: hold.FailOpen,
		Backend:       BackendDatastore,
		Namespace:     store.DefaultNamespace,
	}
	for _, pr := range p.processors {
		c, err = pr(c)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}
