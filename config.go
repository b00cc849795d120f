package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	articlesPerPlayer int
	bind              string
	port              int
	prefix            string
	profile           bool
	roomCapacity      int
	roomTTL           time.Duration
	rounds            int
	snapshotFile      string
	supplyURL         string
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roomCapacity < 2 {
		return fmt.Errorf("invalid room capacity (must be at least 2): %d", c.roomCapacity)
	}
	if c.rounds < 0 {
		return fmt.Errorf("invalid round count (must be 0 or more, 0 meaning unlimited): %d", c.rounds)
	}
	if c.articlesPerPlayer < 1 {
		return fmt.Errorf("invalid articles-per-player (must be at least 1): %d", c.articlesPerPlayer)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIETOME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "lietome",
		Short:         "A real-time social deduction party game about suspiciously plausible articles.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVar(&cfg.articlesPerPlayer, "articles-per-player", 10, "number of candidate articles dealt to each player (env: LIETOME_ARTICLES_PER_PLAYER)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIETOME_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIETOME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LIETOME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LIETOME_PROFILE)")
	fs.IntVar(&cfg.roomCapacity, "room-capacity", 8, "default maximum number of players per room (env: LIETOME_ROOM_CAPACITY)")
	fs.DurationVar(&cfg.roomTTL, "room-ttl", 60*time.Minute, "time before idle, unoccupied rooms are reclaimed (env: LIETOME_ROOM_TTL)")
	fs.IntVar(&cfg.rounds, "rounds", 8, "default number of rounds per game, 0 for unlimited (env: LIETOME_ROUNDS)")
	fs.StringVar(&cfg.snapshotFile, "snapshot-file", "lietome-state.json", "path to the room state snapshot (env: LIETOME_SNAPSHOT_FILE)")
	fs.StringVar(&cfg.supplyURL, "supply-url", "http://localhost:8090/articles", "base URL of the article supply service (env: LIETOME_SUPPLY_URL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIETOME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIETOME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIETOME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LIETOME_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("lietome v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
