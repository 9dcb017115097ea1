package beacon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-accounting-oracle/frame"
)

func TestChainConfigFromSpec(t *testing.T) {
	genesis := time.Unix(1606824023, 0)
	want := frame.ChainConfig{SlotsPerEpoch: 32, SecondsPerSlot: 12, GenesisTime: 1606824023}

	tests := []struct {
		name string
		spec map[string]interface{}
		err  error
	}{
		{
			name: "decoded",
			spec: map[string]interface{}{slotsPerEpochKey: uint64(32), secondsPerSlotKey: 12 * time.Second},
		},
		{
			name: "raw",
			spec: map[string]interface{}{slotsPerEpochKey: "32", secondsPerSlotKey: "12"},
		},
		{
			name: "missing",
			spec: map[string]interface{}{slotsPerEpochKey: uint64(32)},
			err:  ErrMissingSpecValue,
		},
		{
			name: "garbage",
			spec: map[string]interface{}{slotsPerEpochKey: "many", secondsPerSlotKey: "12"},
			err:  ErrInvalidSpecValue,
		},
		{
			name: "unexpected type",
			spec: map[string]interface{}{slotsPerEpochKey: 32.0, secondsPerSlotKey: "12"},
			err:  ErrInvalidSpecValue,
		},
		{
			name: "zero slot length",
			spec: map[string]interface{}{slotsPerEpochKey: uint64(32), secondsPerSlotKey: time.Duration(0)},
			err:  frame.ErrSecondsPerSlotCannotBeZero,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := ChainConfigFromSpec(test.spec, genesis)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, want, cfg)
		})
	}
}

func TestFetchChainConfig_unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := FetchChainConfig(ctx, "http://127.0.0.1:1", 200*time.Millisecond)
	require.Error(t, err)
}
