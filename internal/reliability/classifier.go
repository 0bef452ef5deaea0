package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsSuccessStatus reports whether code is in the 2xx range.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// IsTransientRealtimeError reports whether a realtime "error" event describes
// an upstream condition that may clear on its own, as opposed to a rejected
// client event.
func IsTransientRealtimeError(errType, code string) bool {
	switch errType {
	case "server_error":
		return true
	}
	switch code {
	case "rate_limit_exceeded", "session_expired_retry", "internal_error":
		return true
	default:
		return false
	}
}
