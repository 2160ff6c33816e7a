package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	meta := MetadataFor(CodeInvalidTransition)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
	if meta.Retryable {
		t.Fatal("transition errors must not be retryable")
	}

	unknown := MetadataFor(Code("NOT_A_CODE"))
	if unknown.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should map to internal, got %d", unknown.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeDependency, cause, "gateway dispatch")

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should be discoverable via errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", err.Code())
	}
}

func TestAsUnwrapsThroughFmt(t *testing.T) {
	inner := New(CodeInsufficientFunds, "balance would go negative")
	outer := fmt.Errorf("debit wallet: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error through wrap chain")
	}
	if typed.Code() != CodeInsufficientFunds {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if !HasCode(outer, CodeInsufficientFunds) {
		t.Fatal("HasCode should match through the chain")
	}
	if HasCode(outer, CodeRetryExhausted) {
		t.Fatal("HasCode matched the wrong code")
	}
}

func TestNilReceiverSafety(t *testing.T) {
	var err *Error
	if err.Code() != CodeInternal {
		t.Fatal("nil error should report internal code")
	}
	if err.Error() != "" {
		t.Fatal("nil error should render empty")
	}
	if err.WithDetails("x") != nil {
		t.Fatal("nil error should stay nil")
	}
}
