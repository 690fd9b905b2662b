package youtube

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"

	"chantrack/retry"
)

// Classify maps Data API errors onto the retry taxonomy. Quota and
// throttling rejections are rate-limited, 5xx and network failures are
// transient, everything else (including structural not-found conditions)
// is fatal and surfaces to the caller unchanged.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.ClassFatal
	}

	switch {
	case errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrHandleNotFound),
		errors.Is(err, ErrNoUploads):
		return retry.ClassFatal
	}

	var ge *googleapi.Error
	if errors.As(err, &ge) {
		if ge.Code == 429 {
			return retry.ClassRateLimited
		}
		if ge.Code == 403 && hasReason(ge, "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded") {
			return retry.ClassRateLimited
		}
		if ge.Code >= 500 {
			return retry.ClassTransient
		}
		return retry.ClassFatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return retry.ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return retry.ClassTransient
	}
	// Unwrapped transport failures from the API client surface as plain
	// url.Error strings.
	if strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF") {
		return retry.ClassTransient
	}

	return retry.ClassFatal
}

func hasReason(ge *googleapi.Error, reasons ...string) bool {
	for _, item := range ge.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	// Some surfaces put the reason only in the message body.
	for _, r := range reasons {
		if strings.Contains(ge.Message, r) {
			return true
		}
	}
	return false
}
