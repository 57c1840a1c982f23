package domain

import (
	"strings"
	"testing"
)

func TestSetDetailTruncation(t *testing.T) {
	long := strings.Repeat("x", 200)

	tests := []struct {
		name    string
		detail  string
		isError bool
		want    string
	}{
		{
			name:   "short non-error kept verbatim",
			detail: "name fetched: John Doe",
			want:   "name fetched: John Doe",
		},
		{
			name:   "non-error within slack kept verbatim",
			detail: strings.Repeat("a", MaxDetailDisplayLength*3/2),
			want:   strings.Repeat("a", MaxDetailDisplayLength*3/2),
		},
		{
			name:   "non-error over slack truncated with ellipsis",
			detail: long,
			want:   strings.Repeat("x", MaxDetailDisplayLength) + "...",
		},
		{
			name:    "error cut at first sentence when it fits",
			detail:  "connection refused. retried 3 times without success, giving up on this member for now",
			isError: true,
			want:    "connection refused.",
		},
		{
			name:    "error cut at newline before period",
			detail:  "timeout\nstack: " + long,
			isError: true,
			want:    "timeout",
		},
		{
			name:    "error with oversized first sentence falls back to hard cut",
			detail:  long + ". tail",
			isError: true,
			want:    strings.Repeat("x", MaxDetailDisplayLength) + "...",
		},
		{
			name:    "short error without period kept",
			detail:  "tls handshake failed",
			isError: true,
			want:    "tls handshake failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMember("0016000000", "109990000", "", "")
			m.SetDetail(tt.detail, tt.isError)

			if m.Detail != tt.want {
				t.Errorf("Detail = %q, want %q", m.Detail, tt.want)
			}
			if m.FullDetail != tt.detail {
				t.Errorf("FullDetail = %q, want the verbatim input", m.FullDetail)
			}
		})
	}
}

func TestTryAcquireIsExclusive(t *testing.T) {
	m := NewMember("0016000000", "109990000", "", "")

	if !m.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if m.TryAcquire() {
		t.Fatal("second TryAcquire should fail while held")
	}
	if !m.IsProcessing() {
		t.Fatal("IsProcessing should report true while held")
	}

	m.Release()
	if !m.TryAcquire() {
		t.Fatal("TryAcquire should succeed after Release")
	}
}

func TestFullNameAr(t *testing.T) {
	m := NewMember("0016000000", "109990000", "", "")
	if m.HasName() {
		t.Fatal("new member should not have a name")
	}
	if got := m.FullNameAr(); got != "" {
		t.Fatalf("FullNameAr = %q, want empty", got)
	}

	m.NomAr, m.PrenomAr = "بن", "علي"
	if !m.HasName() {
		t.Fatal("member with both name parts should have a name")
	}
	if got := m.FullNameAr(); got != "بن علي" {
		t.Fatalf("FullNameAr = %q", got)
	}
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection", &APIError{Kind: ErrKindConnection}, true},
		{"rate limited", &APIError{Kind: ErrKindRateLimited}, true},
		{"http", &APIError{Kind: ErrKindHTTP, StatusCode: 500}, true},
		{"malformed response", &APIError{Kind: ErrKindMalformedResponse}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountsAsFailure(tt.err); got != tt.want {
				t.Errorf("CountsAsFailure = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	if !IsNetworkError(&APIError{Kind: ErrKindTimeout}) {
		t.Error("timeout should be a network error")
	}
	if !IsNetworkError(&APIError{Kind: ErrKindTLS}) {
		t.Error("tls should be a network error")
	}
	if IsNetworkError(&APIError{Kind: ErrKindHTTP, StatusCode: 500}) {
		t.Error("http should not be a network error")
	}
	if IsNetworkError(nil) {
		t.Error("nil should not be a network error")
	}
}

func TestNormalizeLoadedDerivesShortDetail(t *testing.T) {
	long := strings.Repeat("x", 200)
	m := NewMember("1001", "2001", "", "")
	m.Status = StatusNoDates
	m.FullDetail = long
	m.TryAcquire()

	m.NormalizeLoaded()

	if m.IsProcessing() {
		t.Error("processing claim should be cleared after load")
	}
	want := long[:MaxDetailDisplayLength] + "..."
	if m.Detail != want {
		t.Errorf("Detail = %q, want re-derived %q", m.Detail, want)
	}

	// An already populated short detail is left alone.
	m.Detail = "kept"
	m.NormalizeLoaded()
	if m.Detail != "kept" {
		t.Errorf("Detail = %q, want kept", m.Detail)
	}
}

func TestRetryable(t *testing.T) {
	for _, tt := range []struct {
		kind ErrorKind
		want bool
	}{
		{ErrKindRateLimited, true},
		{ErrKindTimeout, true},
		{ErrKindConnection, true},
		{ErrKindTLS, true},
		{ErrKindHTTP, true},
		{ErrKindUnknown, true},
		{ErrKindMalformedResponse, false},
	} {
		e := &APIError{Kind: tt.kind}
		if got := e.Retryable(); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
