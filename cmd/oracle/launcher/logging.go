package launcher

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/evalphobia/logrus_sentry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-accounting-oracle/events"
)

const sentryTimeout = 5 * time.Second

// setupLogging installs the root handler of the structured logger.
func setupLogging(cfg LoggingConfig, w io.Writer) error {
	var format log.Format
	switch cfg.Format {
	case "", "text":
		format = log.TerminalFormat(cfg.Color)
	case "json":
		format = log.JSONFormat()
	default:
		return errors.Errorf("unknown log format %q (text|json)", cfg.Format)
	}
	if cfg.Verbosity < int(log.LvlCrit) || cfg.Verbosity > int(log.LvlTrace) {
		return errors.Errorf("log verbosity %d out of range 0..5", cfg.Verbosity)
	}
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.StreamHandler(w, format)))
	return nil
}

// newAlerter returns the operator alert logger. With a DSN configured every
// entry at warning level or above is also sent to Sentry.
func newAlerter(cfg LoggingConfig, w io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	l.Out = w
	if cfg.Format == "json" {
		l.Formatter = &logrus.JSONFormatter{}
	}
	if cfg.SentryDSN == "" {
		return l, nil
	}
	hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sentry hook")
	}
	hook.Timeout = sentryTimeout
	l.AddHook(hook)
	return l, nil
}

// alertSink forwards protocol warnings to the alert logger.
type alertSink struct {
	log *logrus.Logger
}

func (s alertSink) Emit(ev events.Event) {
	w, ok := ev.(events.Warning)
	if !ok {
		return
	}
	fields := logrus.Fields{"event": ev.Name()}
	kv := events.Fields(ev)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	s.log.WithFields(fields).Warn(w.Warning())
}
