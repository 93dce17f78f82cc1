package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ordercore/internal/retry"
	"ordercore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedVenue replays canned results per call.
type scriptedVenue struct {
	mu       sync.Mutex
	margin   []Result
	leverage []Result
	calls    map[string]int
}

func (v *scriptedVenue) next(kind string, script []Result) Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.calls == nil {
		v.calls = make(map[string]int)
	}
	i := v.calls[kind]
	v.calls[kind]++
	if i >= len(script) {
		return script[len(script)-1]
	}
	return script[i]
}

func (v *scriptedVenue) SetMarginType(context.Context, string, string) Result {
	return v.next("margin", v.margin)
}

func (v *scriptedVenue) SetLeverage(context.Context, string, int) Result {
	return v.next("leverage", v.leverage)
}

func fastPolicy() retry.Policy {
	p := DefaultPolicy()
	p.Backoff = retry.Backoff{Min: time.Millisecond, Max: time.Millisecond}
	return p
}

func TestConfigureMarginAlreadySet(t *testing.T) {
	venue := &scriptedVenue{
		margin:   []Result{Failure(ReasonRejected, CodeMarginTypeUnchanged, "No need to change margin type.")},
		leverage: []Result{Failure(ReasonConnectivity, CodeConnectivity, "timeout"), Accepted("")},
	}
	c, err := NewConfigurator(venue, fastPolicy())
	require.NoError(t, err)

	err = c.Configure(t.Context(), SymbolSettings{Symbol: "DOTUSDT", MarginType: "ISOLATED", Leverage: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, venue.calls["margin"])
	assert.Equal(t, 2, venue.calls["leverage"])
}

func TestConfigureExhausted(t *testing.T) {
	venue := &scriptedVenue{
		margin: []Result{Failure(ReasonConnectivity, CodeConnectivity, "timeout")},
	}
	c, err := NewConfigurator(venue, fastPolicy())
	require.NoError(t, err)

	err = c.Configure(t.Context(), SymbolSettings{Symbol: "DOTUSDT", MarginType: "ISOLATED"})
	assert.True(t, errors.Is(err, exception.ErrRetryExhausted))
	assert.Equal(t, 3, venue.calls["margin"])
}

func TestConfigureFatalLeverage(t *testing.T) {
	venue := &scriptedVenue{
		leverage: []Result{Failure(ReasonInvalidParams, CodeInvalidLeverage, "Leverage 500 is not valid")},
	}
	c, err := NewConfigurator(venue, fastPolicy())
	require.NoError(t, err)

	err = c.Configure(t.Context(), SymbolSettings{Symbol: "DOTUSDT", Leverage: 500})
	assert.True(t, errors.Is(err, exception.ErrRetryFatal))
	assert.Equal(t, 1, venue.calls["leverage"])
	assert.Zero(t, venue.calls["margin"])
}

func TestConfigureWithPaper(t *testing.T) {
	p := NewPaper()
	c, err := NewConfigurator(p, fastPolicy())
	require.NoError(t, err)

	settings := SymbolSettings{Symbol: "BTCUSDT", MarginType: "ISOLATED", Leverage: 5}
	require.NoError(t, c.Configure(t.Context(), settings))
	require.NoError(t, c.Configure(t.Context(), settings))

	assert.Error(t, c.Configure(t.Context(), SymbolSettings{}))
}

func TestNewConfiguratorNilVenue(t *testing.T) {
	_, err := NewConfigurator(nil, DefaultPolicy())
	assert.True(t, errors.Is(err, exception.ErrExecutorNil))
}
