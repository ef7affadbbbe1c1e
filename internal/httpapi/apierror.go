package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// apiError is an error carrying the HTTP status it is answered with.
type apiError struct {
	err    error
	status int
}

type errorMessage struct {
	Error string `json:"error"`
}

var serverError []byte

func init() {
	// there is always a body to send when encoding fails.
	eb, err := json.Marshal(&errorMessage{Error: http.StatusText(http.StatusInternalServerError)})
	if err != nil {
		panic(err)
	}
	serverError = eb
}

func newError(status int, format string, args ...interface{}) *apiError {
	return &apiError{
		err:    fmt.Errorf(format, args...),
		status: status,
	}
}

func (e *apiError) Error() string {
	return e.err.Error()
}

func (e *apiError) Unwrap() error {
	return e.err
}

// writeError answers err as JSON. Errors that are not an *apiError are internal,
// their message is not sent to the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := http.StatusText(status)

	var apierr *apiError
	if errors.As(err, &apierr) {
		status = apierr.status
		msg = apierr.Error()
	}

	body, err := json.Marshal(&errorMessage{Error: msg})
	if err != nil {
		body = serverError
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
