package launcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-accounting-oracle/beacon"
	"github.com/rony4d/go-accounting-oracle/integration"
)

// Config aggregates everything the launcher needs.
type Config struct {
	DataDir string             `yaml:"datadir"`
	Logging LoggingConfig      `yaml:"logging"`
	Beacon  BeaconConfig       `yaml:"beacon"`
	Network integration.Preset `yaml:"network"`
}

type LoggingConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Format    string `yaml:"format"`
	Color     bool   `yaml:"color"`
	SentryDSN string `yaml:"sentryDsn"`
}

type BeaconConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryPath is the journal file inside the data directory.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func defaultConfig() Config {
	d := DefaultConfig()
	preset, _ := integration.GetPresetByName(d.Network)
	return Config{
		DataDir: resolvePath(d.DataDir),
		Logging: LoggingConfig{
			Verbosity: d.Logging.Verbosity,
			Format:    d.Logging.Format,
			Color:     d.Logging.Color,
			SentryDSN: d.Logging.SentryDSN,
		},
		Beacon: BeaconConfig{
			URL:     d.Beacon.URL,
			Timeout: d.Beacon.Timeout,
		},
		Network: preset,
	}
}

// MakeAllConfigs merges, in order: defaults, the network preset, the config
// file, CLI flags and finally the chain clock of the beacon node if one is
// configured. The preset is named by --network, else by network.name in the
// config file.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	var file []byte
	if path := ctx.GlobalString("config"); path != "" {
		var err error
		if file, err = os.ReadFile(path); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}

	name := cfg.Network.Name
	if file != nil {
		var peek struct {
			Network struct {
				Name string `yaml:"name"`
			} `yaml:"network"`
		}
		if err := yaml.Unmarshal(file, &peek); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
		if peek.Network.Name != "" {
			name = peek.Network.Name
		}
	}
	if ctx.GlobalIsSet("network") {
		name = ctx.GlobalString("network")
	}
	preset, err := integration.GetPresetByName(name)
	if err != nil {
		return Config{}, err
	}
	integration.ApplyPreset(&cfg.Network, preset)

	if file != nil {
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
		cfg.Network.Name = preset.Name
		cfg.DataDir = resolvePath(cfg.DataDir)
	}

	applyCLIOverrides(ctx, &cfg)

	if cfg.Beacon.URL != "" {
		chain, err := beacon.FetchChainConfig(context.Background(), cfg.Beacon.URL, cfg.Beacon.Timeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Network.Rules.Chain = chain
	}

	if err := cfg.Network.Rules.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Network.CommitteeSize <= 0 {
		return Config{}, errors.Errorf("committee size must be positive, got %d", cfg.Network.CommitteeSize)
	}
	return cfg, nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalIsSet("beacon.url") {
		cfg.Beacon.URL = ctx.GlobalString("beacon.url")
	}
	if ctx.GlobalIsSet("beacon.timeout") {
		cfg.Beacon.Timeout = ctx.GlobalDuration("beacon.timeout")
	}

	chain := &cfg.Network.Rules.Chain
	if ctx.GlobalIsSet("chain.genesis") {
		chain.GenesisTime = ctx.GlobalUint64("chain.genesis")
	}
	if ctx.GlobalIsSet("chain.slots-per-epoch") {
		chain.SlotsPerEpoch = ctx.GlobalUint64("chain.slots-per-epoch")
	}
	if ctx.GlobalIsSet("chain.seconds-per-slot") {
		chain.SecondsPerSlot = ctx.GlobalUint64("chain.seconds-per-slot")
	}

	fr := &cfg.Network.Rules.Frame
	if ctx.GlobalIsSet("frame.initial-epoch") {
		fr.InitialEpoch = ctx.GlobalUint64("frame.initial-epoch")
	}
	if ctx.GlobalIsSet("frame.epochs") {
		fr.EpochsPerFrame = ctx.GlobalUint64("frame.epochs")
	}
	if ctx.GlobalIsSet("frame.fast-lane") {
		fr.FastLaneLengthSlots = ctx.GlobalUint64("frame.fast-lane")
	}

	if ctx.GlobalIsSet("committee.size") {
		cfg.Network.CommitteeSize = ctx.GlobalInt("committee.size")
	}
	if ctx.GlobalIsSet("committee.quorum") {
		cfg.Network.Quorum = ctx.GlobalUint64("committee.quorum")
	}
	if ctx.GlobalIsSet("chunk-size") {
		cfg.Network.ChunkSize = ctx.GlobalInt("chunk-size")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create datadir %s", dir)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
