package httpapi

import "github.com/roach88/mongoversioning/internal/engine"

// Status is the outcome field of every JSON response.
type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response is the standard API response format.
type Response struct {
	Status   Status                 `json:"status,omitempty"`
	RunID    string                 `json:"run_id,omitempty"`
	Channels []engine.ChannelStatus `json:"channels,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func NewOKResponse(runID string) Response {
	return Response{Status: StatusOK, RunID: runID}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewChannelsResponse(runID string, channels []engine.ChannelStatus) Response {
	return Response{Status: StatusSuccess, RunID: runID, Channels: channels}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
