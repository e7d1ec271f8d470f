package config

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/rtdb"
	"github.com/GaoLiaoLiao/delern/rtdb/couch"
	"github.com/GaoLiaoLiao/delern/rtdb/firebase"
	"github.com/GaoLiaoLiao/delern/rtdb/memory"
)

// Keys read by Open.
const (
	Driver       = "driver"
	DSN          = "dsn"
	Database     = "database"
	Credentials  = "credentials"
	PollInterval = "poll_interval"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverCouch    = "couch"
	DriverFirebase = "firebase"
)

// DefaultDatabase is the CouchDB database used when none is configured.
const DefaultDatabase = "delern"

// Conf is a collection of config key/value pairs
type Conf struct {
	c map[string]string
}

// New returns a conf collection from the passed argument.
func New(conf map[string]string) *Conf {
	return &Conf{
		c: conf,
	}
}

// NewFromJSON returns a conf collection, parsed from the passed JSON blob.
func NewFromJSON(data []byte) (*Conf, error) {
	var c map[string]string
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &Conf{c: c}, nil
}

// Env is the configuration read from the environment.
type Env struct {
	Driver       string        `env:"DELERN_DRIVER" envDefault:"memory"`
	DSN          string        `env:"DELERN_DSN"`
	Database     string        `env:"DELERN_DATABASE" envDefault:"delern"`
	Credentials  string        `env:"DELERN_CREDENTIALS"`
	PollInterval time.Duration `env:"DELERN_POLL_INTERVAL" envDefault:"2s"`
}

// FromEnv returns a conf collection built from DELERN_* environment
// variables, with defaults for anything unset.
func FromEnv() (*Conf, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return New(e.Map()), nil
}

// Map returns e keyed the way Conf expects. Empty values are left out.
func (e Env) Map() map[string]string {
	m := map[string]string{
		Driver:       e.Driver,
		DSN:          e.DSN,
		Database:     e.Database,
		Credentials:  e.Credentials,
		PollInterval: e.PollInterval.String(),
	}
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

// IsSet returns true if key is set.
func (c *Conf) IsSet(key string) bool {
	_, ok := c.c[key]
	return ok
}

// GetString returns the value as a string.
func (c *Conf) GetString(key string) string {
	return c.c[key]
}

// GetDuration parses the value as a duration. An unset key yields zero.
func (c *Conf) GetDuration(key string) (time.Duration, error) {
	s, ok := c.c[key]
	if !ok {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	return d, errors.Wrapf(err, "%s", key)
}

// Open connects to the database the conf describes.
func (c *Conf) Open(ctx context.Context) (*rtdb.DB, error) {
	driver := strings.ToLower(c.GetString(Driver))
	switch driver {
	case "", DriverMemory:
		return memory.NewDB(), nil
	case DriverCouch:
		if !c.IsSet(DSN) {
			return nil, errors.Errorf("%s driver requires %s", driver, DSN)
		}
		name := c.GetString(Database)
		if name == "" {
			name = DefaultDatabase
		}
		return couch.NewDB(ctx, c.GetString(DSN), name)
	case DriverFirebase:
		if !c.IsSet(DSN) {
			return nil, errors.Errorf("%s driver requires %s", driver, DSN)
		}
		interval, err := c.GetDuration(PollInterval)
		if err != nil {
			return nil, err
		}
		d, err := firebase.New(ctx, c.GetString(DSN), c.GetString(Credentials))
		if err != nil {
			return nil, err
		}
		if interval > 0 {
			d.PollInterval = interval
		}
		return rtdb.New(d), nil
	}
	return nil, errors.Errorf("unknown driver %q", driver)
}
