package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := NewNetworkError("mathpix", stderrors.New("connection refused"))
	wrapped := fmt.Errorf("cycle failed: %w", base)

	if !IsCode(wrapped, ErrorNetwork) {
		t.Errorf("IsCode(wrapped, NETWORK_ERROR) = false, want true")
	}
	if IsCode(wrapped, ErrorBusy) {
		t.Errorf("IsCode(wrapped, BUSY) = true, want false")
	}
	if IsCode(nil, ErrorNetwork) {
		t.Errorf("IsCode(nil) = true, want false")
	}
}

func TestIsNetworkCoversMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewNetworkError("vision", nil), true},
		{"malformed", NewMalformedResponseError("openai", "empty choices", nil), true},
		{"unresolved", NewUnresolvedTargetError("item-x", "term"), false},
		{"plain", stderrors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetwork(tt.err); got != tt.want {
				t.Errorf("IsNetwork() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := stderrors.New("timeout")
	err := NewNetworkError("openai", cause)

	if got, want := err.Error(), "NETWORK_ERROR: call to openai failed (caused by: timeout)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestToMapIncludesCycleAndDetails(t *testing.T) {
	err := NewBusyError("board:1").WithCycle("cyc-1")
	m := err.ToMap()

	if m["error_code"] != "BUSY" {
		t.Errorf("error_code = %v, want BUSY", m["error_code"])
	}
	if m["cycle_id"] != "cyc-1" {
		t.Errorf("cycle_id = %v, want cyc-1", m["cycle_id"])
	}
	if m["scope"] != "board:1" {
		t.Errorf("scope = %v, want board:1", m["scope"])
	}
}
