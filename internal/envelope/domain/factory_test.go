package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryNewEnvelope(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	factory := NewFactory("device-1", 0, 1024).WithClock(func() time.Time { return now })

	env, err := factory.NewEnvelope(ActionKindClockIn, []byte(`{"t":"09:00"}`))
	require.NoError(t, err)

	assert.Equal(t, "device-1", env.DeviceID)
	assert.Equal(t, int64(1), env.DeviceSequence)
	assert.Equal(t, ActionKindClockIn, env.Kind)
	assert.Equal(t, SyncStatePending, env.SyncState)
	assert.Equal(t, now, env.CapturedAt)
	assert.Equal(t, fmt.Sprintf("device-1-1-%d", now.UnixMilli()), env.ID)
	assert.True(t, env.VerifyPayload())
	assert.Zero(t, env.Attempts)
}

func TestFactorySequencesAreStrictlyIncreasing(t *testing.T) {
	factory := NewFactory("device-1", 41, 1024)

	first, err := factory.NewEnvelope(ActionKindClockIn, []byte(`{}`))
	require.NoError(t, err)
	second, err := factory.NewEnvelope(ActionKindClockOut, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, int64(42), first.DeviceSequence)
	assert.Equal(t, int64(43), second.DeviceSequence)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestFactoryClampsBackwardsClock(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 6, 1, 9, 0, 10, 0, time.UTC),
		time.Date(2025, 6, 1, 9, 0, 5, 0, time.UTC), // clock stepped back
		time.Date(2025, 6, 1, 9, 0, 20, 0, time.UTC),
	}
	i := 0
	factory := NewFactory("device-1", 0, 1024).WithClock(func() time.Time {
		ts := times[i]
		i++
		return ts
	})

	first, err := factory.NewEnvelope(ActionKindLocationUpdate, []byte(`{}`))
	require.NoError(t, err)
	second, err := factory.NewEnvelope(ActionKindLocationUpdate, []byte(`{}`))
	require.NoError(t, err)
	third, err := factory.NewEnvelope(ActionKindLocationUpdate, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, first.CapturedAt, second.CapturedAt, "backwards clock must be clamped")
	assert.True(t, third.CapturedAt.After(second.CapturedAt))
}

func TestFactoryRejectsOversizedPayload(t *testing.T) {
	factory := NewFactory("device-1", 0, 8)

	_, err := factory.NewEnvelope(ActionKindFormSubmit, []byte("0123456789"))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFactoryRejectsUnknownKind(t *testing.T) {
	factory := NewFactory("device-1", 0, 1024)

	_, err := factory.NewEnvelope(ActionKind("teleport"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFactoryCopiesPayload(t *testing.T) {
	factory := NewFactory("device-1", 0, 1024)
	payload := []byte(`{"a":1}`)

	env, err := factory.NewEnvelope(ActionKindFormSubmit, payload)
	require.NoError(t, err)

	payload[0] = 'X'
	assert.True(t, env.VerifyPayload(), "envelope must not alias the caller's buffer")
}
