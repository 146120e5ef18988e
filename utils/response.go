package utils

import (
	"encoding/json"
	"net/http"

	"agrilink-bend/models"
)

// ErrorBody carries the machine-readable error of a failed response
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Response represents a generic response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// RespondWithData sends a success envelope
func RespondWithData(w http.ResponseWriter, code int, data interface{}) {
	RespondWithJSON(w, code, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response with a stable error code
func RespondWithError(w http.ResponseWriter, status int, code, msg string) {
	RespondWithJSON(w, status, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: msg},
	})
}

// RespondWithErr maps a coded error onto the envelope and HTTP status
func RespondWithErr(w http.ResponseWriter, err error) {
	code := models.ErrCode(err)
	RespondWithJSON(w, statusFor(code), Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: messageFor(err, code)},
	})
}

// RespondWithJSON ... This
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func statusFor(code string) int {
	switch code {
	case models.CodeValidation:
		return http.StatusBadRequest
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeConflict:
		return http.StatusConflict
	case models.CodeForbidden:
		return http.StatusForbidden
	case models.CodeUnauthorized:
		return http.StatusUnauthorized
	case models.CodePayoutFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor hides internals behind a generic message for uncoded errors
func messageFor(err error, code string) string {
	if coded, ok := err.(*models.Error); ok {
		return coded.Message
	}
	if code == models.CodeServerError {
		return "Something went wrong processing the request"
	}
	return err.Error()
}
