package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	all := []RawState{StateUnknown, StateIdle, StateAssociation, StateConfiguration, StateReady, StateOnline, StateDisconnect, StateFailure}

	tests := []struct {
		raw      RawState
		previous RawState
		want     ConnectState
	}{
		{StateAssociation, StateIdle, Associating},
		{StateConfiguration, StateAssociation, Associated},
		{StateFailure, StateAssociation, AssociationFailed},
		{StateFailure, StateConfiguration, IPFailed},
		{StateFailure, StateIdle, NotAssociated},
		{StateFailure, StateReady, NotAssociated},
		{StateFailure, StateFailure, NotAssociated},
		{StateFailure, StateUnknown, NotAssociated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Translate(tt.raw, tt.previous), "Translate(%s, %s)", tt.raw, tt.previous)
	}

	// States whose translation does not depend on history.
	fixed := map[RawState]ConnectState{
		StateIdle:          NotAssociated,
		StateDisconnect:    NotAssociated,
		StateAssociation:   Associating,
		StateConfiguration: Associated,
		StateReady:         IPConfigured,
		StateOnline:        IPConfigured,
	}
	for raw, want := range fixed {
		for _, previous := range all {
			assert.Equal(t, want, Translate(raw, previous), "Translate(%s, %s)", raw, previous)
		}
	}
}

func TestParseRawState(t *testing.T) {
	for s, name := range rawStateNames {
		assert.Equal(t, s, ParseRawState(name))
		assert.Equal(t, name, s.String())
	}
	assert.Equal(t, StateUnknown, ParseRawState("bogus"))
	assert.Equal(t, "unknown", StateUnknown.String())
}

func TestConnectable(t *testing.T) {
	assert.True(t, StateIdle.Connectable())
	assert.True(t, StateFailure.Connectable())
	assert.False(t, StateAssociation.Connectable())
	assert.False(t, StateConfiguration.Connectable())
	assert.False(t, StateReady.Connectable())
	assert.False(t, StateOnline.Connectable())
}

func TestInProgress(t *testing.T) {
	assert.True(t, StateAssociation.InProgress())
	assert.True(t, StateConfiguration.InProgress())
	for _, s := range []RawState{StateUnknown, StateIdle, StateReady, StateOnline, StateDisconnect, StateFailure} {
		assert.False(t, s.InProgress(), s.String())
	}
}
