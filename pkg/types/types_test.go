package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings BoardSettings
		wantErr  error
	}{
		{name: "defaults", settings: DefaultBoardSettings()},
		{name: "zero width", settings: BoardSettings{Width: 0, Height: 600, BackgroundColor: "#fff", GridSize: 20}, wantErr: ErrInvalidSettings},
		{name: "negative height", settings: BoardSettings{Width: 800, Height: -1, BackgroundColor: "#fff", GridSize: 20}, wantErr: ErrInvalidSettings},
		{name: "zero grid", settings: BoardSettings{Width: 800, Height: 600, BackgroundColor: "#fff", GridSize: 0}, wantErr: ErrInvalidSettings},
		{name: "blank color", settings: BoardSettings{Width: 800, Height: 600, BackgroundColor: "  ", GridSize: 20}, wantErr: ErrInvalidSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStroke_Validate(t *testing.T) {
	assert.ErrorIs(t, Stroke{}.Validate(), ErrEmptyStroke)
	assert.NoError(t, Stroke{Points: []Point{{X: 1, Y: 2}}}.Validate())
}

func TestStroke_WireFormat(t *testing.T) {
	data, err := json.Marshal(Stroke{ID: "s1", BoardID: "b1", Points: []Point{{X: 1, Y: 2}}, Color: "#000", Width: 2, CreatedAt: 42})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "b1", fields["boardId"])
	assert.Equal(t, float64(42), fields["timestamp"])
	assert.NotContains(t, fields, "authorId")
}

func TestCommandError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"validation", Validationf("missing %s", "boardId"), ErrValidation},
		{"not found", NotFoundf("Board not found: %s", "b1"), ErrNotFound},
		{"authorization", Unauthorizedf("Authentication required"), ErrAuthorization},
		{"capacity", Capacityf("full"), ErrCapacity},
		{"unknown", UnknownCommandf("Unknown message type: %s", "x"), ErrUnknownCommand},
		{"wrapped", fmt.Errorf("handler: %w", NotFoundf("gone")), ErrNotFound},
		{"plain", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmdErr *CommandError
			if tt.kind == nil {
				assert.False(t, errors.As(tt.err, &cmdErr))
				return
			}
			require.True(t, errors.As(tt.err, &cmdErr))
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "Board not found: b1", ClientMessage(NotFoundf("Board not found: %s", "b1")))
	assert.Equal(t, "Internal error processing message", ClientMessage(errors.New("disk on fire")))
}

func TestUploadTypes(t *testing.T) {
	assert.True(t, IsAllowedUploadType(MimePDF))
	assert.True(t, IsAllowedUploadType(MimeDOCX))
	assert.True(t, IsAllowedUploadType("image/png"))
	assert.False(t, IsAllowedUploadType("application/zip"))
	assert.True(t, IsDocument(MimePDF))
	assert.False(t, IsDocument("image/jpeg"))
}

func TestSubjects(t *testing.T) {
	assert.True(t, IsValidSubject("Math"))
	assert.True(t, IsValidSubject("Social Studies"))
	assert.False(t, IsValidSubject("math"))
	assert.False(t, IsValidGroupName("   "))
	assert.True(t, IsValidGroupName("Calculus crew"))
}
