package sovd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptedCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]any
	}{
		{"read dtc", CommandReadDTC, map[string]any{"ecuAddress": "0x10"}},
		{"read dtc uppercase hex", CommandReadDTC, map[string]any{"ecuAddress": "0xAB"}},
		{"clear dtc without code", CommandClearDTC, map[string]any{"ecuAddress": "0x7e"}},
		{"clear dtc with code", CommandClearDTC, map[string]any{"ecuAddress": "0x7e", "dtcCode": "P0420"}},
		{"read data by id", CommandReadDataByID, map[string]any{"ecuAddress": "0x10", "dataId": "0xF190"}},
		{"extra params are ignored", CommandReadDTC, map[string]any{"ecuAddress": "0x10", "note": "anything"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(tt.command, tt.params))
		})
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]any
		field   string
		reason  Reason
	}{
		{"unknown command", "EraseECU", map[string]any{"ecuAddress": "0x10"}, "command_name", ReasonUnknownCommand},
		{"missing ecuAddress", CommandReadDTC, map[string]any{}, "ecuAddress", ReasonMissingField},
		{"empty ecuAddress", CommandReadDTC, map[string]any{"ecuAddress": ""}, "ecuAddress", ReasonMissingField},
		{"ecuAddress too long", CommandReadDTC, map[string]any{"ecuAddress": "0x100"}, "ecuAddress", ReasonBadFormat},
		{"ecuAddress no prefix", CommandReadDTC, map[string]any{"ecuAddress": "10"}, "ecuAddress", ReasonBadFormat},
		{"ecuAddress wrong type", CommandReadDTC, map[string]any{"ecuAddress": 16}, "ecuAddress", ReasonBadFormat},
		{"bad dtcCode", CommandClearDTC, map[string]any{"ecuAddress": "0x10", "dtcCode": "0420"}, "dtcCode", ReasonBadFormat},
		{"dtcCode wrong type", CommandClearDTC, map[string]any{"ecuAddress": "0x10", "dtcCode": 420}, "dtcCode", ReasonBadFormat},
		{"missing dataId", CommandReadDataByID, map[string]any{"ecuAddress": "0x10"}, "dataId", ReasonMissingField},
		{"short dataId", CommandReadDataByID, map[string]any{"ecuAddress": "0x10", "dataId": "0xF1"}, "dataId", ReasonBadFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.command, tt.params)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestValidate_IsPure(t *testing.T) {
	params := map[string]any{"ecuAddress": "0x10"}
	require.NoError(t, Validate(CommandReadDTC, params))
	require.NoError(t, Validate(CommandReadDTC, params))
	assert.Equal(t, map[string]any{"ecuAddress": "0x10"}, params)
}
