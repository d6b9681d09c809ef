package providers

import (
	"net/http"
	"testing"
)

func TestNewUpstreamError(t *testing.T) {
	tests := []struct {
		name       string
		resp       *http.Response
		wantStatus string
	}{
		{
			name:       "custom reason phrase",
			resp:       &http.Response{StatusCode: http.StatusServiceUnavailable, Status: "503 Model Is Loading"},
			wantStatus: "Model Is Loading",
		},
		{
			name:       "canonical reason phrase",
			resp:       &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found"},
			wantStatus: "Not Found",
		},
		{
			name:       "missing status line",
			resp:       &http.Response{StatusCode: http.StatusTooManyRequests},
			wantStatus: "Too Many Requests",
		},
		{
			name:       "code without reason",
			resp:       &http.Response{StatusCode: http.StatusBadGateway, Status: "502"},
			wantStatus: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewUpstreamError(tt.resp, []byte("busy"))
			if err.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.resp.StatusCode)
			}
			if err.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", err.Status, tt.wantStatus)
			}
			if err.Body != "busy" {
				t.Errorf("Body = %q", err.Body)
			}
		})
	}
}
