package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodePatchSyntax, "test error message")

	if err.Code != ErrCodePatchSyntax {
		t.Errorf("expected code %s, got %s", ErrCodePatchSyntax, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeOracleTransport, "oracle unreachable", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *StepwiseError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodePatchUnknownVerb, "unknown verb"),
			wantCode: "PATCH-002",
			wantMsg:  "unknown verb",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStoreRead, "read failed", fmt.Errorf("permission denied")),
			wantCode: "STORE-001",
			wantMsg:  "permission denied",
		},
		{
			name:     "formatted message",
			err:      Newf(ErrCodePatchArity, "%s expects %d arguments", "removeTask", 1),
			wantCode: "PATCH-003",
			wantMsg:  "removeTask expects 1 arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSuggestionsAndDocs(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad config").
		WithSuggestion("first").
		WithSuggestions("second", "third").
		WithDocs("https://example.com/docs")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	out := err.Error()
	for _, want := range []string{"Suggestions:", "• first", "• third", "Documentation: https://example.com/docs"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodeOracleTransport, "unreachable")
	outer := Wrap(ErrCodePlanRepairExhausted, "gave up", inner)
	wrapped := fmt.Errorf("run: %w", outer)

	if !HasCode(wrapped, ErrCodePlanRepairExhausted) {
		t.Error("expected outer code to be found")
	}
	if !HasCode(wrapped, ErrCodeOracleTransport) {
		t.Error("expected inner code to be found through the cause chain")
	}
	if HasCode(wrapped, ErrCodeStoreWrite) {
		t.Error("unexpected code match")
	}
	if HasCode(nil, ErrCodeStoreWrite) {
		t.Error("nil error must not match")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeStoreWrite) {
		t.Error("plain error must not match")
	}
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewTaskNotFoundError(7))

	se, ok := As(err)
	if !ok {
		t.Fatal("expected StepwiseError in chain")
	}
	if se.Code != ErrCodePatchTaskNotFound {
		t.Errorf("expected %s, got %s", ErrCodePatchTaskNotFound, se.Code)
	}
	if !strings.Contains(se.Message, "7") {
		t.Errorf("expected task id in message, got %q", se.Message)
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Error("plain error must not convert")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *StepwiseError
		wantCode ErrorCode
		wantText string
	}{
		{"transport", NewOracleTransportError("ollama", fmt.Errorf("refused")), ErrCodeOracleTransport, "ollama"},
		{"schema exhausted", NewSchemaExhaustedError(5), ErrCodeOracleSchemaExhausted, "5 corrective attempts"},
		{"unknown provider", NewUnknownProviderError("gpt9"), ErrCodeOracleUnknownProvider, "gpt9"},
		{"plan not found", NewPlanNotFoundError("20250101_000000_abcd1234"), ErrCodePlanNotFound, "20250101_000000_abcd1234"},
		{"repair exhausted", NewRepairExhaustedError(3, "missing step"), ErrCodePlanRepairExhausted, "missing step"},
		{"config invalid", NewConfigInvalidError("stepwise.yaml", fmt.Errorf("bad yaml")), ErrCodeConfigInvalid, "stepwise.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if !strings.Contains(tt.err.Error(), tt.wantText) {
				t.Errorf("expected %q in %q", tt.wantText, tt.err.Error())
			}
		})
	}
}
