package store

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestIsSerializationFailure_Matches(t *testing.T) {
	err := &pq.Error{Code: "40001"}
	if !isSerializationFailure(err) {
		t.Fatal("expected 40001 to be recognized as a serialization failure")
	}
}

func TestIsSerializationFailure_StringWrappedDoesNotMatch(t *testing.T) {
	err := errors.New("wrapped: " + (&pq.Error{Code: "40001"}).Error())
	if isSerializationFailure(err) {
		t.Fatal("plain wrapped string should not match without errors.As chain")
	}
}

func TestIsSerializationFailure_OtherCode(t *testing.T) {
	err := &pq.Error{Code: "23505"}
	if isSerializationFailure(err) {
		t.Fatal("unique_violation must not be treated as retryable")
	}
}

func TestErrTransactionFailed_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ErrTransactionFailed{Attempts: 3, Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}

func TestDiagnostics_Snapshot(t *testing.T) {
	d := NewDiagnostics(nil)
	d.recordConflict(0)
	d.recordConflict(1)
	d.recordSuccessAfterRetry()

	snap := d.Snapshot()
	if snap.TotalRetries != 2 {
		t.Errorf("expected 2 retries, got %d", snap.TotalRetries)
	}
	if snap.SuccessfulAfterRetry != 1 {
		t.Errorf("expected 1 successful-after-retry, got %d", snap.SuccessfulAfterRetry)
	}
}
