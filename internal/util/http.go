package util

import (
	"net/http"
)

// IsServerStatus reports whether the status code is a 5xx-class status.
func IsServerStatus(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError
}

// IsSuccessStatus reports whether the status code is a 2xx-class status.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}
