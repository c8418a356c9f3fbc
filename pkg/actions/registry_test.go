// ABOUTME: Tests for name-based action dispatch
// ABOUTME: JSON option decoding, defaults and unknown names
package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDecodesOptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.actions.Run(ctx, "otherVolume", json.RawMessage(`{"user":"bea","type":"Increase","volume":250}`)))
	require.Len(t, f.client.users, 1)
	assert.Equal(t, 200.0, *f.client.users[0].settings.Volume)

	require.NoError(t, f.actions.Run(ctx, "joinVoiceChannel", json.RawMessage(`{"channel":"vc9","force":true}`)))
	require.Len(t, f.client.selects, 1)
	assert.Equal(t, "vc9", f.client.selects[0].channelID)
	assert.True(t, f.client.selects[0].opts.Force)
}

func TestRunDefaultsToToggle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.actions.Run(context.Background(), "selfMute", nil))
	require.Len(t, f.client.settings, 1)
	assert.True(t, *f.client.settings[0].Mute)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var unknown ErrUnknownAction
	assert.ErrorAs(t, f.actions.Run(ctx, "launchRockets", nil), &unknown)

	var verr *ValidationError
	assert.ErrorAs(t, f.actions.Run(ctx, "otherMute", json.RawMessage(`{"user":`)), &verr)
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "sendWebhook")
	assert.IsNonDecreasing(t, names)
	assert.Len(t, names, len(registry))
}
