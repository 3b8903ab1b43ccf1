package agent

import "encoding/json"

// Status is the execution status of a capability invocation
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Category classifies a capability failure
type Category string

const (
	CategoryInvalidInput   Category = "invalid_input"
	CategoryNotFound       Category = "not_found"
	CategoryExecutionError Category = "execution_error"
)

// Result is the uniform payload every capability handler returns. Handlers
// never let an error escape past the registry boundary; the orchestration
// loop always receives a well-formed Result, success or error.
type Result struct {
	Status  Status
	Error   Category // set only when Status is StatusError
	Message string   // human-readable; informational on success, explanatory on error
	Body    map[string]interface{}
}

// Success returns a success result carrying a free-form body
func Success(body map[string]interface{}) Result {
	return Result{Status: StatusSuccess, Body: body}
}

// SuccessMessage returns a success result with an informational message,
// used for idempotent no-ops.
func SuccessMessage(message string, body map[string]interface{}) Result {
	return Result{Status: StatusSuccess, Message: message, Body: body}
}

// Failure returns an error result with the given category and message
func Failure(category Category, message string) Result {
	return Result{Status: StatusError, Error: category, Message: message}
}

// MarshalJSON flattens the result into the wire shape the model sees:
// body fields at the top level next to status, error, and message.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Body)+3)
	for k, v := range r.Body {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	return json.Marshal(out)
}
