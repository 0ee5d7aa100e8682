package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallPausesAfterSuccessAndFailure(t *testing.T) {
	tests := []struct {
		name    string
		fnErr   error
		wantErr bool
	}{
		{"success", nil, false},
		{"failure", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept []time.Duration
			pacer := &Pacer{Delay: 2 * time.Second, sleep: func(d time.Duration) { slept = append(slept, d) }}

			calls := 0
			result, err := Call(pacer, func() (string, error) {
				calls++
				require.Empty(t, slept, "sleep must come after the call")
				return "value", tt.fnErr
			})

			require.Equal(t, 1, calls)
			require.Equal(t, []time.Duration{2 * time.Second}, slept)
			require.Equal(t, "value", result)
			if tt.wantErr {
				require.ErrorIs(t, err, tt.fnErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPacerZeroDelayNeverSleeps(t *testing.T) {
	slept := false
	pacer := &Pacer{sleep: func(time.Duration) { slept = true }}
	pacer.Pause()
	require.False(t, slept)

	var nilPacer *Pacer
	result, err := Call(nilPacer, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, result)
}

func TestNewPacer(t *testing.T) {
	pacer := NewPacer(time.Millisecond)
	require.Equal(t, time.Millisecond, pacer.Delay)
	require.NotNil(t, pacer.sleep)
}
