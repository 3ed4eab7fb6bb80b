package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string         `json:"message"`
		Status  int            `json:"status"`
		Meta    map[string]any `json:"meta"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
		TenantID  string `json:"tenant_id"`
		Count     *int   `json:"count"`
	} `json:"metadata"`
}

func decode(t *testing.T, buf *bytes.Buffer) decoded {
	t.Helper()
	var out decoded
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func execute(t *testing.T, args ...string) (decoded, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var buf bytes.Buffer
	root := newRootCommand(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return decode(t, &buf), err
}

func TestWriteData_CountsSlices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeData(&buf, metadata{RequestID: "r1", Timestamp: time.Now()}, []string{"a", "b"}))

	out := decode(t, &buf)
	assert.True(t, out.Success)
	assert.Equal(t, "r1", out.Metadata.RequestID)
	require.NotNil(t, out.Metadata.Count)
	assert.Equal(t, 2, *out.Metadata.Count)

	buf.Reset()
	require.NoError(t, writeData(&buf, metadata{}, map[string]any{"ok": true}))
	assert.Nil(t, decode(t, &buf).Metadata.Count)
}

func TestWriteError_MapsTypedErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: fernerrors.NewNotFoundError("record", "A"), status: http.StatusNotFound},
		{name: "invalid operation", err: fernerrors.NewInvalidOperationError("merge", "self merge"), status: http.StatusBadRequest},
		{name: "invalid state", err: fernerrors.NewInvalidStateError("merge log", "L", "REVERSED", "already unmerged"), status: http.StatusConflict},
		{name: "already merged", err: fernerrors.NewAlreadyMergedError("B", "L"), status: http.StatusConflict},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeError(&buf, metadata{}, tt.err))

			out := decode(t, &buf)
			assert.False(t, out.Success)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.status, out.Error.Status)
			assert.NotEmpty(t, out.Error.Message)
		})
	}
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields(`{"name":"Acme","address":{"city":"Berlin"}}`)
	require.NoError(t, err)
	assert.Equal(t, "Acme", fields["name"])
	assert.Equal(t, map[string]any{"city": "Berlin"}, fields["address"])

	fields, err = parseFields("  ")
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = parseFields(`["not","an","object"]`)
	assert.True(t, fernerrors.IsInvalidOperation(err))
}

func TestParseStrategies(t *testing.T) {
	strategies, err := parseStrategies(map[string]string{"email": "newer", "phone": " DUPLICATE "})
	require.NoError(t, err)
	assert.Equal(t, models.FieldStrategies{"email": models.StrategyNewer, "phone": models.StrategyDuplicate}, strategies)

	_, err = parseStrategies(map[string]string{" ": "MASTER"})
	assert.Error(t, err)
}

func TestQualityCommand_ScoresRawFields(t *testing.T) {
	out, err := execute(t, "quality", "--fields", `{"name":"Acme GmbH","country":"DE","tax_id":"DE123456789"}`)
	require.NoError(t, err)
	assert.True(t, out.Success)

	var score models.QualityScore
	require.NoError(t, json.Unmarshal(out.Data, &score))
	assert.Greater(t, score.Score, 0)
	assert.Equal(t, 100, score.Breakdown.Consistency)
}

func TestMergeCommand_RequiresTenant(t *testing.T) {
	out, err := execute(t, "merge", "A", "B")
	require.Error(t, err)
	assert.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, http.StatusBadRequest, out.Error.Status)
}
