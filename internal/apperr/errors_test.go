package apperr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAsClientError_Wrapped(t *testing.T) {
	err := fmt.Errorf("update: %w", BadRequest("title is required"))
	ce, ok := AsClientError(err)
	if !ok {
		t.Fatal("expected client error")
	}
	if ce.Status != http.StatusBadRequest || ce.Message != "title is required" {
		t.Errorf("got %d %q", ce.Status, ce.Message)
	}
}

func TestAsClientError_Plain(t *testing.T) {
	if _, ok := AsClientError(ErrUnavailable); ok {
		t.Fatal("sentinel should not be a client error")
	}
}
