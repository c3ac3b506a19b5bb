package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ams-project/ams/journal"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/submission"
	"github.com/ams-project/ams/validation"
)

// This package-specific helper function writes an error to an
// http.ResponseWriter, giving it the proper status code, and encoding an
// ErrorResponse in the response body.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	e := ErrorResponse{Code: code, Error: message}
	data, _ := json.Marshal(e)
	w.Write(data)
}

// this type encodes a JSON object for responding to root queries
type ServiceInfoResponse struct {
	Name          string `json:"name" example:"AMS" doc:"The name of the service API"`
	Version       string `json:"version" example:"1.0.0" doc:"The version string (major.minor.patch)"`
	Uptime        int    `json:"uptime" example:"345600" doc:"The time the service has been up (seconds)"`
	Documentation string `json:"documentation" example:"/docs" doc:"The OpenAPI documentation endpoint"`
}

// This type holds information about an error that occurred responding to a
// request.
type ErrorResponse struct {
	// An HTTP error code
	Code int `json:"code"`
	// A descriptive error message
	Error string `json:"message"`
}

// a request to register an analysis type schema (POST)
type RegisterSchemaRequest struct {
	// the analysis type name
	Name string `json:"name" example:"sequencingRead" doc:"the analysis type name"`
	// the JSON Schema document for the experiment-specific payload portion
	Schema json.RawMessage `json:"schema" doc:"a JSON Schema document for the experiment-specific payload portion"`
}

// a response for a schema registration request (POST)
type RegisterSchemaResponse struct {
	Name    string `json:"name" example:"sequencingRead"`
	Version int    `json:"version" example:"1" doc:"the version assigned to the registered schema"`
}

// a response describing one registered schema version (GET)
type SchemaResponse struct {
	Name      string          `json:"name" example:"sequencingRead"`
	Version   int             `json:"version" example:"2"`
	Schema    json.RawMessage `json:"schema" doc:"the registered (or resolved) JSON Schema document"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// a response for a study query (GET)
type StudyResponse struct {
	metadata.Study
}

// a response for a payload submission (POST)
type SubmitResponse struct {
	submission.SubmitResult
	// schema violations, repeated here for clients that only read errors
	Errors []validation.Violation `json:"errors,omitempty"`
}

// a response for a journal query (GET)
type JournalResponse struct {
	Events []journal.Event `json:"events"`
}

// MetadataService defines the interface for our analysis metadata service.
type MetadataService interface {
	// Starts the service on the selected port, returning an error that indicates
	// success or failure.
	Start(port int) error
	// Gracefully shuts down the service without interrupting active connections.
	Shutdown(ctx context.Context) error
	// Closes down the service, freeing all resources.
	Close()
}
