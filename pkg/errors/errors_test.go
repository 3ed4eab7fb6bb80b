package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("record", "r1"), IsNotFound},
		{"invalid operation", NewInvalidOperationError("merge", "cannot merge a record with itself"), IsInvalidOperation},
		{"invalid state", NewInvalidStateError("record", "r1", "MERGED", "record must be ACTIVE"), IsInvalidState},
		{"already merged", NewAlreadyMergedError("r1", "log-1"), IsAlreadyMerged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)), "wrapping must be preserved")
		})
	}

	assert.False(t, IsNotFound(NewAlreadyMergedError("r1", "")))
	assert.False(t, IsAlreadyMerged(nil))
}

func TestToHTTPError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(ToHTTPError(NewNotFoundError("record", "r1"))))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(ToHTTPError(NewInvalidOperationError("merge", "x"))))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(ToHTTPError(fmt.Errorf("tx: %w", NewAlreadyMergedError("r1", "")))))
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(ToHTTPError(fmt.Errorf("boom"))))
	assert.Nil(t, ToHTTPError(nil))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "record 'r1' not found", NewNotFoundError("record", "r1").Error())
	assert.Equal(t, "record 'r1' already participates in an active merge", NewAlreadyMergedError("r1", "").Error())
	assert.Equal(t, "merge log 'l1' is REVERSED: already unmerged", NewInvalidStateError("merge log", "l1", "REVERSED", "already unmerged").Error())
}
