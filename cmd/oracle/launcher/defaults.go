package launcher

import "time"

// Defaults bundles the baseline configuration values the launcher uses
// before presets, config files and flags override them.
type Defaults struct {
	DataDir string
	Network string
	Logging LoggingDefaults
	Beacon  BeaconDefaults
}

// LoggingDefaults controls log verbosity/format and operator alerts.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs (helpful on terminals, best disabled when piping to files).
	SentryDSN string //	Sentry project DSN. When set, protocol warnings (missed processing, incomplete extra data, discarded reports) are reported there as well as logged.
}

// BeaconDefaults configure the optional beacon node the chain clock is read from.
type BeaconDefaults struct {
	URL     string        //	Beacon node REST endpoint, e.g. http://localhost:5052. Empty keeps the chain clock of the preset/config file.
	Timeout time.Duration //	Per-request timeout for the beacon node.
}

// DefaultConfig returns a fully populated Defaults instance.
func DefaultConfig() Defaults {
	return Defaults{
		DataDir: "~/.accounting-oracle",
		Network: "fakenet",
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     false,
		},
		Beacon: BeaconDefaults{
			Timeout: 30 * time.Second,
		},
	}
}
