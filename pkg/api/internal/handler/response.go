package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const maxRequestBodySize = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
	Iface   string `json:"iface,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logrus.
			WithError(err).
			Warn("failed to write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string, iface string) {
	writeJSON(w, status, &messageResponse{
		Message: message,
		Iface:   iface,
	})
}

// decodeBody decodes a JSON request body into T. An absent or empty body is
// ErrRequestBodyRequired.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	if r.Body == nil {
		return nil, ErrRequestBodyRequired
	}

	var body *T
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrRequestBodyRequired
		}
		return nil, ErrInvalidRequestBody
	}
	if body == nil {
		return nil, ErrRequestBodyRequired
	}
	return body, nil
}
