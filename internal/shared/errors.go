package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")

	// Source page errors
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrNoItemsForDay     = fmt.Errorf("no items for day")
	ErrExtraction        = fmt.Errorf("structural extraction error")

	// Resolution and destination errors
	ErrResolutionMiss       = fmt.Errorf("no acceptable match")
	ErrDestinationTransient = fmt.Errorf("transient destination error")
	ErrDestinationFatal     = fmt.Errorf("destination error")

	// Persistence errors
	ErrCheckpointNotFound = fmt.Errorf("checkpoint not found")
	ErrNotFound           = fmt.Errorf("record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
