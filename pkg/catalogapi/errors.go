package catalogapi

import "errors"

var (
	// ErrInvalidConfig is returned by NewClient for an unusable configuration
	ErrInvalidConfig = errors.New("invalid catalog api config")

	// ErrBadRequest is returned for 400 and 422 responses
	ErrBadRequest = errors.New("catalog api rejected the request")

	// ErrUnauthorized is returned when the service token is missing or invalid
	ErrUnauthorized = errors.New("catalog api unauthorized")

	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("catalog api resource not found")

	// ErrConflict is returned for 409 responses
	ErrConflict = errors.New("catalog api conflict")

	// ErrUpstream is returned for any other non-success status
	ErrUpstream = errors.New("catalog api error")

	// ErrNetwork is returned when the request never got a response
	ErrNetwork = errors.New("catalog api network error")

	// ErrRejected is returned when a 2xx response carries success=false
	ErrRejected = errors.New("catalog api reported failure")

	// ErrDecode is returned when a response body cannot be decoded
	ErrDecode = errors.New("catalog api response could not be decoded")
)
