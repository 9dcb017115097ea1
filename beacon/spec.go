// Package beacon reads the chain clock from a beacon node, so an operator
// does not have to copy genesis time and slot parameters by hand.
package beacon

import (
	"context"
	"strconv"
	"time"

	eth2client "github.com/attestantio/go-eth2-client"
	"github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rony4d/go-accounting-oracle/frame"
)

var (
	ErrMissingSpecValue = errors.New("missing spec value")
	ErrInvalidSpecValue = errors.New("invalid spec value")
	ErrUnsupportedNode  = errors.New("beacon node does not serve the chain spec")
)

const (
	slotsPerEpochKey  = "SLOTS_PER_EPOCH"
	secondsPerSlotKey = "SECONDS_PER_SLOT"
)

// FetchChainConfig asks the beacon node at url for its genesis time and slot
// parameters.
func FetchChainConfig(ctx context.Context, url string, timeout time.Duration) (frame.ChainConfig, error) {
	logger := log.New("module", "beacon", "url", url)

	svc, err := eth2http.New(ctx,
		eth2http.WithAddress(url),
		eth2http.WithTimeout(timeout),
		// the client logs through zerolog; keep it quiet unless something is wrong
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return frame.ChainConfig{}, errors.Wrapf(err, "connect to beacon node %s", url)
	}
	specProvider, ok := svc.(eth2client.SpecProvider)
	if !ok {
		return frame.ChainConfig{}, errors.Wrap(ErrUnsupportedNode, "spec")
	}
	genesisProvider, ok := svc.(eth2client.GenesisProvider)
	if !ok {
		return frame.ChainConfig{}, errors.Wrap(ErrUnsupportedNode, "genesis")
	}

	spec, err := specProvider.Spec(ctx, &api.SpecOpts{})
	if err != nil {
		return frame.ChainConfig{}, errors.Wrap(err, "fetch spec")
	}
	genesis, err := genesisProvider.Genesis(ctx, &api.GenesisOpts{})
	if err != nil {
		return frame.ChainConfig{}, errors.Wrap(err, "fetch genesis")
	}

	cfg, err := ChainConfigFromSpec(spec.Data, genesis.Data.GenesisTime)
	if err != nil {
		return frame.ChainConfig{}, err
	}
	logger.Info("Fetched chain config", "chain", cfg)
	return cfg, nil
}

// ChainConfigFromSpec builds the chain clock from a beacon spec map. Values
// may be typed, as go-eth2-client decodes them, or raw strings.
func ChainConfigFromSpec(spec map[string]interface{}, genesis time.Time) (frame.ChainConfig, error) {
	slotsPerEpoch, err := specUint(spec, slotsPerEpochKey)
	if err != nil {
		return frame.ChainConfig{}, err
	}
	secondsPerSlot, err := specUint(spec, secondsPerSlotKey)
	if err != nil {
		return frame.ChainConfig{}, err
	}
	if genesis.Unix() < 0 {
		return frame.ChainConfig{}, errors.Wrapf(ErrInvalidSpecValue, "genesis time %v", genesis)
	}
	cfg := frame.ChainConfig{
		SlotsPerEpoch:  slotsPerEpoch,
		SecondsPerSlot: secondsPerSlot,
		GenesisTime:    uint64(genesis.Unix()),
	}
	if err := cfg.Validate(); err != nil {
		return frame.ChainConfig{}, errors.Wrap(err, "beacon spec")
	}
	return cfg, nil
}

func specUint(spec map[string]interface{}, key string) (uint64, error) {
	raw, ok := spec[key]
	if !ok {
		return 0, errors.Wrap(ErrMissingSpecValue, key)
	}
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case time.Duration:
		return uint64(v / time.Second), nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidSpecValue, "%s: %q", key, v)
		}
		return n, nil
	default:
		return 0, errors.Wrapf(ErrInvalidSpecValue, "%s: %T", key, raw)
	}
}
