package main

import (
	"encoding/json"
	"io"
	"reflect"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
)

type envelope struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *errorBody `json:"error,omitempty"`
	Metadata metadata   `json:"metadata"`
}

type errorBody struct {
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type metadata struct {
	RequestID string    `json:"request_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Count     *int      `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeData(w io.Writer, meta metadata, data any) error {
	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice {
		count := v.Len()
		meta.Count = &count
	}
	return writeEnvelope(w, envelope{Success: true, Data: data, Metadata: meta})
}

func writeError(w io.Writer, meta metadata, err error) error {
	httpErr := fernerrors.ToHTTPError(err)
	return writeEnvelope(w, envelope{
		Success: false,
		Error: &errorBody{
			Message: httpErr.Error(),
			Status:  httperror.GetStatusCode(httpErr),
			Meta:    httpErr.Meta,
		},
		Metadata: meta,
	})
}

func writeEnvelope(w io.Writer, env envelope) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(env)
}
