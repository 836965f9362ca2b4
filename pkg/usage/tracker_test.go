package usage

import (
	"errors"
	"testing"
	"time"

	"spiralcodex/rotor/pkg/providers"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"active", StatusActive, true},
		{"exhausted", StatusExhausted, true},
		{"error", StatusError, true},
		{"disabled", StatusDisabled, true},
		{"ACTIVE", StatusActive, true},
		{"  active  ", StatusActive, true},
		// The predecessor system persisted stringified enum members.
		{"ProviderStatus.ACTIVE", StatusActive, true},
		{"ProviderStatus.EXHAUSTED", StatusExhausted, true},
		{"ProviderStatus.ERROR", StatusError, true},
		{"bogus", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ParseStatus(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRegisterStartsActive(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{Requests: 10, Tokens: 100})

	status, ok := tr.Status("p")
	if !ok {
		t.Fatal("Status() ok = false after Register")
	}
	if status != StatusActive {
		t.Errorf("status = %q, want active", status)
	}
	if !tr.IsAvailable("p") {
		t.Error("IsAvailable() = false for a fresh provider")
	}
}

func TestIsAvailableUnknownProvider(t *testing.T) {
	tr := NewTracker()
	if tr.IsAvailable("nope") {
		t.Error("IsAvailable() = true for unregistered provider")
	}
}

func TestRequestBudgetExhaustion(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{Requests: 2, Tokens: 0})

	tr.RecordRequest("p")
	if !tr.IsAvailable("p") {
		t.Fatal("unavailable after 1 of 2 requests")
	}

	tr.RecordRequest("p")
	if tr.IsAvailable("p") {
		t.Error("still available after hitting the request budget")
	}
	status, _ := tr.Status("p")
	if status != StatusExhausted {
		t.Errorf("status = %q, want exhausted", status)
	}
}

func TestTokenBudgetExhaustion(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{Requests: 0, Tokens: 50})

	tr.RecordUsage("p", providers.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	if !tr.IsAvailable("p") {
		t.Fatal("unavailable below the token budget")
	}

	tr.RecordUsage("p", providers.TokenUsage{PromptTokens: 10, CompletionTokens: 15, TotalTokens: 25})
	if tr.IsAvailable("p") {
		t.Error("still available after crossing the token budget")
	}
	status, _ := tr.Status("p")
	if status != StatusExhausted {
		t.Errorf("status = %q, want exhausted", status)
	}
}

func TestWindowResetReactivatesExhausted(t *testing.T) {
	tr := NewTracker(WithWindow(10 * time.Millisecond))
	tr.Register("p", Limits{Requests: 1})

	tr.RecordRequest("p")
	if tr.IsAvailable("p") {
		t.Fatal("still available after hitting the budget")
	}

	time.Sleep(20 * time.Millisecond)

	if !tr.IsAvailable("p") {
		t.Error("not available after the window elapsed")
	}
	status, _ := tr.Status("p")
	if status != StatusActive {
		t.Errorf("status = %q, want active after reset", status)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	if snap[0].Counters.Requests != 0 {
		t.Errorf("requests = %d after reset, want 0", snap[0].Counters.Requests)
	}
}

func TestResetIfExpiredIsIdempotent(t *testing.T) {
	tr := NewTracker(WithWindow(time.Hour))
	tr.Register("p", Limits{Requests: 10})
	tr.RecordRequest("p")

	tr.ResetIfExpired("p")
	tr.ResetIfExpired("p")

	snap := tr.Snapshot()
	if snap[0].Counters.Requests != 1 {
		t.Errorf("requests = %d, want 1 (window not yet elapsed)", snap[0].Counters.Requests)
	}
}

func TestWindowResetDoesNotClearError(t *testing.T) {
	tr := NewTracker(WithWindow(10 * time.Millisecond))
	tr.Register("p", Limits{})
	tr.SetStatus("p", StatusError)

	time.Sleep(20 * time.Millisecond)
	tr.ResetIfExpired("p")

	status, _ := tr.Status("p")
	if status != StatusError {
		t.Errorf("status = %q, want error (only exhausted clears on reset)", status)
	}
}

func TestTransitionOnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"auth marks errored", &providers.AuthError{Provider: "p", StatusCode: 401}, StatusError},
		{"quota marks exhausted", &providers.QuotaError{Provider: "p", StatusCode: 429}, StatusExhausted},
		{"transient leaves active", &providers.TransientError{Provider: "p", StatusCode: 500}, StatusActive},
		{"plain error leaves active", errors.New("boom"), StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.Register("p", Limits{})

			tr.TransitionOnError("p", tt.err)

			status, _ := tr.Status("p")
			if status != tt.want {
				t.Errorf("status = %q, want %q", status, tt.want)
			}
		})
	}
}

func TestCredentialUpdatedClearsError(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{})
	tr.TransitionOnError("p", &providers.AuthError{Provider: "p"})

	tr.CredentialUpdated("p")

	status, _ := tr.Status("p")
	if status != StatusActive {
		t.Errorf("status = %q, want active after credential update", status)
	}
}

func TestCredentialUpdatedLeavesExhausted(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{})
	tr.SetStatus("p", StatusExhausted)

	tr.CredentialUpdated("p")

	status, _ := tr.Status("p")
	if status != StatusExhausted {
		t.Errorf("status = %q, want exhausted (credential update only clears error)", status)
	}
}

func TestRestoreInvalidStatusFallsBackToActive(t *testing.T) {
	tr := NewTracker()
	tr.Restore("p", Status("ProviderStatus.ACTIVE"), Counters{}, Limits{})

	status, _ := tr.Status("p")
	if status != StatusActive {
		t.Errorf("status = %q, want active fallback for invalid status", status)
	}
}

func TestRestorePreservesCounters(t *testing.T) {
	tr := NewTracker()
	start := time.Now().Add(-10 * time.Minute)
	tr.Restore("p", StatusExhausted, Counters{
		Requests:    7,
		TotalTokens: 420,
		WindowStart: start,
	}, Limits{Requests: 10, Tokens: 1000})

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	u := snap[0]
	if u.Status != StatusExhausted {
		t.Errorf("status = %q, want exhausted", u.Status)
	}
	if u.Counters.Requests != 7 || u.Counters.TotalTokens != 420 {
		t.Errorf("counters = %+v, restored values lost", u.Counters)
	}
	if !u.Counters.WindowStart.Equal(start) {
		t.Errorf("window start = %v, want %v", u.Counters.WindowStart, start)
	}
}

func TestDisabledProviderNeverAvailable(t *testing.T) {
	tr := NewTracker()
	tr.Register("p", Limits{})
	tr.SetStatus("p", StatusDisabled)

	if tr.IsAvailable("p") {
		t.Error("disabled provider reported available")
	}
}

func TestSnapshotSortedByID(t *testing.T) {
	tr := NewTracker()
	tr.Register("zeta", Limits{})
	tr.Register("alpha", Limits{})
	tr.Register("mid", Limits{})

	snap := tr.Snapshot()
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("snapshot[%d].ID = %q, want %q", i, snap[i].ID, id)
		}
	}
}
