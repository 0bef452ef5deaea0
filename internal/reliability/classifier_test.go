package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsSuccessStatus(t *testing.T) {
	if !IsSuccessStatus(201) {
		t.Fatalf("IsSuccessStatus(201) = false, want true")
	}
	if IsSuccessStatus(302) {
		t.Fatalf("IsSuccessStatus(302) = true, want false")
	}
}

func TestIsTransientRealtimeError(t *testing.T) {
	cases := []struct {
		errType, code string
		want          bool
	}{
		{"server_error", "", true},
		{"invalid_request_error", "rate_limit_exceeded", true},
		{"invalid_request_error", "unknown_parameter", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := IsTransientRealtimeError(tc.errType, tc.code); got != tc.want {
			t.Fatalf("IsTransientRealtimeError(%q, %q) = %v, want %v", tc.errType, tc.code, got, tc.want)
		}
	}
}
