package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-accounting-oracle/flags"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/integration"
)

// runConfigFromArgs runs MakeAllConfigs with a synthetic CLI context.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllGlobalFlags()

	var (
		got    Config
		gotErr error
	)
	app.Action = func(c *cli.Context) error {
		got, gotErr = MakeAllConfigs(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"oracle"}, args...)))
	return got, gotErr
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestMakeAllConfigs_flagOverrides checks that every declared flag lands in
// the corresponding Config field.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dataDir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			args: nil,
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, integration.FakeNetPreset(), cfg.Network)
				require.Equal(t, filepath.Join(GuessHomeDir(), ".accounting-oracle"), cfg.DataDir)
				require.Equal(t, LoggingConfig{Verbosity: 3, Format: "text"}, cfg.Logging)
				require.Equal(t, 30*time.Second, cfg.Beacon.Timeout)
			},
		},
		{
			name: "datadir and logging",
			args: []string{"--datadir", dataDir, "--log.format", "json", "--log.verbosity", "5", "--log.color", "--sentry.dsn", "https://key@sentry.example/1"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, dataDir, cfg.DataDir)
				require.Equal(t, filepath.Join(dataDir, "history.db"), cfg.HistoryPath())
				require.Equal(t, LoggingConfig{Verbosity: 5, Format: "json", Color: true, SentryDSN: "https://key@sentry.example/1"}, cfg.Logging)
			},
		},
		{
			name: "network preset",
			args: []string{"--network", "holesky"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, integration.HoleskyPreset(), cfg.Network)
			},
		},
		{
			name: "chain and frame",
			args: []string{"--chain.genesis", "100", "--chain.slots-per-epoch", "8", "--chain.seconds-per-slot", "2", "--frame.initial-epoch", "3", "--frame.epochs", "5", "--frame.fast-lane", "7"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, frame.ChainConfig{SlotsPerEpoch: 8, SecondsPerSlot: 2, GenesisTime: 100}, cfg.Network.Rules.Chain)
				require.Equal(t, frame.FrameConfig{InitialEpoch: 3, EpochsPerFrame: 5, FastLaneLengthSlots: 7}, cfg.Network.Rules.Frame)
			},
		},
		{
			name: "committee",
			args: []string{"--committee.size", "7", "--committee.quorum", "5", "--chunk-size", "3"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, 7, cfg.Network.CommitteeSize)
				require.Equal(t, uint64(5), cfg.Network.Quorum)
				require.Equal(t, 3, cfg.Network.ChunkSize)
				require.Equal(t, "fakenet", cfg.Network.Name)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args)
			require.NoError(t, err, "args = %#v", test.args)
			test.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_file(t *testing.T) {
	require := require.New(t)
	dataDir := t.TempDir()
	path := writeFile(t, "oracle.yaml", `
datadir: `+dataDir+`
logging:
  verbosity: 4
beacon:
  timeout: 5s
network:
  name: holesky
  committeeSize: 11
  rules:
    frame:
      epochsPerFrame: 20
`)

	cfg, err := runConfigFromArgs(t, []string{"--config", path})
	require.NoError(err)
	require.Equal("holesky", cfg.Network.Name)
	require.Equal(dataDir, cfg.DataDir)
	require.Equal(4, cfg.Logging.Verbosity)
	require.Equal("text", cfg.Logging.Format)
	require.Equal(5*time.Second, cfg.Beacon.Timeout)
	require.Equal(11, cfg.Network.CommitteeSize)
	require.Equal(uint64(3), cfg.Network.Quorum)
	want := integration.HoleskyPreset().Rules.Frame
	want.EpochsPerFrame = 20
	require.Equal(want, cfg.Network.Rules.Frame)
	require.Equal(integration.HoleskyPreset().Rules.Chain, cfg.Network.Rules.Chain)

	// flags beat the file, --network beats network.name
	cfg, err = runConfigFromArgs(t, []string{"--config", path, "--committee.size", "4", "--network", "fakenet"})
	require.NoError(err)
	require.Equal("fakenet", cfg.Network.Name)
	require.Equal(4, cfg.Network.CommitteeSize)
	require.Equal(uint64(20), cfg.Network.Rules.Frame.EpochsPerFrame)
	require.Equal(integration.FakeNetPreset().Rules.Chain, cfg.Network.Rules.Chain)
}

func TestMakeAllConfigs_errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown network", []string{"--network", "sepolia"}},
		{"missing file", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"broken file", []string{"--config", writeFile(t, "broken.yaml", "network: [")}},
		{"zero frame", []string{"--frame.epochs", "0"}},
		{"zero slot", []string{"--chain.seconds-per-slot", "0"}},
		{"no members", []string{"--committee.size", "0"}},
		{"unreachable beacon node", []string{"--beacon.url", "http://127.0.0.1:1", "--beacon.timeout", "200ms"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := runConfigFromArgs(t, test.args)
			require.Error(t, err)
		})
	}
}
