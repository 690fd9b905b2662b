package chantrack

import (
	"chantrack/quota"
	"chantrack/retry"
	"chantrack/storage"
	"chantrack/youtube"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, chantrack.ErrChannelNotFound) {
//		fmt.Println("Channel not found")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var apiErr *chantrack.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed: %v\n", apiErr.Op, apiErr.Err)
//	}

// Type aliases for convenient error handling.
type (
	// APIError wraps a Data API failure with the operation that produced it.
	APIError = youtube.APIError
	// ExhaustedError wraps the last error after retries were exhausted.
	ExhaustedError = retry.ExhaustedError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrChannelNotFound indicates the YouTube channel does not exist.
	ErrChannelNotFound = youtube.ErrChannelNotFound
	// ErrNoUploads indicates the channel has no uploads playlist.
	ErrNoUploads = youtube.ErrNoUploads
	// ErrHandleNotFound indicates no channel matched the given handle.
	ErrHandleNotFound = youtube.ErrHandleNotFound

	// Quota errors
	// ErrNoCredentials indicates no usable API keys were loaded.
	ErrNoCredentials = quota.ErrNoCredentials
	// ErrQuotaExhausted indicates no key has enough remaining quota.
	ErrQuotaExhausted = quota.ErrQuotaExhausted

	// Storage errors
	// ErrNotFound indicates an entity was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrNoActiveCredentials indicates the credential table has no active rows.
	ErrNoActiveCredentials = storage.ErrNoActiveCredentials
)

// IsRetryExhausted reports whether err is a retry budget exhaustion.
func IsRetryExhausted(err error) bool {
	return retry.IsExhausted(err)
}
