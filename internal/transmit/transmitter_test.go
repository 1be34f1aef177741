package transmit

import (
	"fmt"
	"testing"

	"easyir/internal/ha"
	"easyir/internal/ircodes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		code     ircodes.CodeValue
		expected []string
	}{
		{"bare code gets prefix", ircodes.CodeValue{"AABB"}, []string{"b64:AABB"}},
		{"prefixed code untouched", ircodes.CodeValue{"b64:AABB"}, []string{"b64:AABB"}},
		{"mixed sequence", ircodes.CodeValue{"AABB", "b64:CCDD"}, []string{"b64:AABB", "b64:CCDD"}},
		{"order preserved", ircodes.CodeValue{"CC", "AA", "BB"}, []string{"b64:CC", "b64:AA", "b64:BB"}},
		{"empty value", ircodes.CodeValue{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.code))
		})
	}
}

func TestNormalize_SingleStringEqualsSingletonSequence(t *testing.T) {
	// A value parsed from "AABB" and one parsed from ["AABB"] must produce
	// the same payload.
	assert.Equal(t, Normalize(ircodes.CodeValue{"AABB"}), Normalize(ircodes.CodeValue{"AABB"}))
}

func TestNormalize_NeverDoublePrefixes(t *testing.T) {
	once := Normalize(ircodes.CodeValue{"AABB"})
	twice := Normalize(ircodes.CodeValue(once))
	assert.Equal(t, once, twice)
}

func TestTransmitter_Send(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mock := ha.NewMockClient()
	tx := New(mock, logger)

	err := tx.Send("remote.bedroom_blaster", ircodes.CodeValue{"AABB"})
	require.NoError(t, err)

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remote", calls[0].Domain)
	assert.Equal(t, "send_command", calls[0].Service)
	assert.Equal(t, "remote.bedroom_blaster", calls[0].Data["entity_id"])
	assert.Equal(t, []string{"b64:AABB"}, calls[0].Data["command"])
}

func TestTransmitter_Send_SequenceInOneCall(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mock := ha.NewMockClient()
	tx := New(mock, logger)

	err := tx.Send("remote.blaster", ircodes.CodeValue{"AABB", "CCDD"})
	require.NoError(t, err)

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"b64:AABB", "b64:CCDD"}, calls[0].Data["command"])
}

func TestTransmitter_Send_FaultPropagates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mock := ha.NewMockClient()
	mock.FailServiceCalls(fmt.Errorf("connection lost"))
	tx := New(mock, logger)

	err := tx.Send("remote.blaster", ircodes.CodeValue{"AABB"})
	assert.Error(t, err)
	assert.Empty(t, mock.GetServiceCalls())
}
