package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("refresh called without deadline")
	}
	f.calls = append(f.calls, symbols)
	return f.err
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestWarmer_RunOnce(t *testing.T) {
	ref := &fakeRefresher{}
	w := NewWarmer("@hourly", []string{"AAPL", "MSFT"}, ref, nil)

	require.NoError(t, w.RunOnce(context.Background()))
	require.Equal(t, 1, ref.count())
	assert.Equal(t, []string{"AAPL", "MSFT"}, ref.calls[0])
}

func TestWarmer_RunOnceWrapsError(t *testing.T) {
	boom := errors.New("upstream down")
	w := NewWarmer("@hourly", []string{"AAPL"}, &fakeRefresher{err: boom}, nil)

	err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestWarmer_Disabled(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		symbols  []string
	}{
		{"no schedule", "", []string{"AAPL"}},
		{"no symbols", "@hourly", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWarmer(tt.schedule, tt.symbols, &fakeRefresher{}, nil)
			assert.False(t, w.Enabled())
			assert.NoError(t, w.Start())
			w.Stop()
		})
	}
}

func TestWarmer_InvalidSchedule(t *testing.T) {
	w := NewWarmer("every now and then", []string{"AAPL"}, &fakeRefresher{}, nil)
	require.True(t, w.Enabled())
	assert.Error(t, w.Start())
}

func TestWarmer_StartStop(t *testing.T) {
	ref := &fakeRefresher{}
	w := NewWarmer("@every 1s", []string{"AAPL"}, ref, nil)
	require.NoError(t, w.Start())

	assert.Eventually(t, func() bool { return ref.count() > 0 }, 3*time.Second, 20*time.Millisecond)
	w.Stop()
}
