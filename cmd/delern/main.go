// Command delern reads, writes and watches locations of a realtime database
// through the model layer.
//
// Usage:
//
//	delern get /decks/uid1 --order-by-child name --limit-first 10
//	delern count /cards/deck1 --follow
//	delern watch /decks/uid1/deck1
//	delern set /decks/uid1/deck1/name '"Spanish"'
//
// The database is selected with --driver (memory, couch or firebase) and
// --dsn, which may also come from DELERN_* environment variables or a config
// file.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GaoLiaoLiao/delern/config"
	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

var version = "dev" // set by the linker

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(openDB).ExecuteContext(ctx); err != nil {
		// Cobra has already printed the error.
		stop()
		os.Exit(1)
	}
}

// opener connects to the database described by conf.
type opener func(ctx context.Context, conf *config.Conf) (*rtdb.DB, error)

func openDB(ctx context.Context, conf *config.Conf) (*rtdb.DB, error) {
	return conf.Open(ctx)
}

// settings are the keys resolved through viper and handed to config.
var settings = []string{
	config.Driver,
	config.DSN,
	config.Database,
	config.Credentials,
	config.PollInterval,
}

// cli is the state shared by all subcommands of one root command.
type cli struct {
	v    *viper.Viper
	open opener
	db   *rtdb.DB

	cfgFile  string
	logLevel string
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{v: viper.New(), open: open}
	cmd := &cobra.Command{
		Use:   "delern",
		Short: "Inspect and edit a realtime database.",
		Long: `delern reads, writes and watches locations of a realtime database.

Locations are slash-separated paths such as /decks/uid1. Values are
read and written as JSON.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.preRun,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.db == nil {
				return nil
			}
			return c.db.Close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./delern.yaml or $HOME/.config/delern/delern.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "info", `log level ("debug", "info", "warn", "error")`)
	flags.String("driver", "", `database driver ("memory", "couch", "firebase")`)
	flags.String("dsn", "", "CouchDB server or Firebase database URL")
	flags.String("database", "", "CouchDB database name")
	flags.String("credentials", "", "Firebase service account key file")
	flags.Duration("poll-interval", 0, "how often Firebase locations are re-read while watching")

	for _, key := range settings {
		_ = c.v.BindPFlag(key, flags.Lookup(strings.ReplaceAll(key, "_", "-")))
	}

	cmd.AddCommand(
		newGetCmd(c),
		newCountCmd(c),
		newWatchCmd(c),
		newSetCmd(c),
	)
	return cmd
}

// preRun resolves the configuration and connects to the database.
func (c *cli) preRun(cmd *cobra.Command, _ []string) error {
	if err := logging.SetLevel(c.logLevel); err != nil {
		return err
	}
	conf, err := c.loadConfig()
	if err != nil {
		return err
	}
	db, err := c.open(cmd.Context(), conf)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	c.db = db
	return nil
}

// loadConfig layers, from lowest to highest precedence, DELERN_* defaults,
// the config file, the environment and flags.
func (c *cli) loadConfig() (*config.Conf, error) {
	defaults, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	for _, key := range settings {
		if defaults.IsSet(key) {
			c.v.SetDefault(key, defaults.GetString(key))
		}
	}

	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		c.v.SetConfigName("delern")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			c.v.AddConfigPath(dir + "/delern")
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || c.cfgFile != "" {
			return nil, errors.Wrap(err, "read config")
		}
	} else {
		logging.Debugf("using config file %s", c.v.ConfigFileUsed())
	}

	c.v.SetEnvPrefix("delern")
	c.v.AutomaticEnv()

	values := make(map[string]string, len(settings))
	for _, key := range settings {
		if v := c.v.GetString(key); v != "" && v != "0s" {
			values[key] = v
		}
	}
	return config.New(values), nil
}
