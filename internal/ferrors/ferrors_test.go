/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package ferrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageFormatsByKind(t *testing.T) {
	e := Invalid("bad thing: %d", 42)
	if got, want := e.Error(), "INVALID: bad thing: 42"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	h := HttpError(404, "object %q not found", "foo.parquet")
	if got, want := h.Error(), `HTTP_ERROR (404): object "foo.parquet" not found`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("disk exploded")
	e := IoError(cause, "writing page")
	if got := errors.Unwrap(e); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
	if !errors.Is(e, cause) {
		t.Error("errors.Is(e, cause) = false, want true")
	}
}

func TestIsComparesKindNotMessage(t *testing.T) {
	a := KeyErrorf("unknown file %d", 1)
	b := KeyErrorf("unknown file %d", 2)
	if !errors.Is(a, b) {
		t.Error("two KindKeyError errors with different messages should compare equal via Is")
	}

	c := Invalid("bad argument")
	if errors.Is(a, c) {
		t.Error("errors of different Kind should not compare equal via Is")
	}
}

func TestIsBusyKeyErrorAlreadyRegisteredHelpers(t *testing.T) {
	if !IsBusy(Busy("file pinned")) {
		t.Error("IsBusy(Busy(...)) = false, want true")
	}
	if IsBusy(Invalid("x")) {
		t.Error("IsBusy(Invalid(...)) = true, want false")
	}

	if !IsKeyError(KeyErrorf("x")) {
		t.Error("IsKeyError(KeyErrorf(...)) = false, want true")
	}

	if !IsAlreadyRegistered(AlreadyRegistered("dup.csv")) {
		t.Error("IsAlreadyRegistered(AlreadyRegistered(...)) = false, want true")
	}

	// asError type-asserts err directly rather than calling errors.As, so a
	// %w-wrapped *Error is not recognized by these Is* helpers.
	wrapped := fmt.Errorf("context: %w", Busy("nested"))
	if IsBusy(wrapped) {
		t.Error("IsBusy(wrapped) = true, want false (asError does not unwrap)")
	}
}

func TestSQLStateClassAndIsError(t *testing.T) {
	cases := []struct {
		state   SQLSTATE
		class   string
		isError bool
	}{
		{SQLStateSuccess, "00", false},
		{SQLStateNoData, "02", false},
		{SQLStateSyntaxError, "42", true},
		{SQLStateTableNotFound, "42", true},
		{SQLStateColumnNotFound, "42", true},
		{SQLStateInternalError, "XX", true},
	}
	for _, c := range cases {
		if got := c.state.Class(); got != c.class {
			t.Errorf("%s.Class() = %q, want %q", c.state, got, c.class)
		}
		if got := c.state.IsError(); got != c.isError {
			t.Errorf("%s.IsError() = %v, want %v", c.state, got, c.isError)
		}
	}
}

func TestWithSQLStateAppendsToMessage(t *testing.T) {
	e := ExecutionError(nil, "table %q does not exist", "widgets").WithSQLState(SQLStateTableNotFound)
	want := `EXECUTION_ERROR: table "widgets" does not exist [42S02]`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	// Tagging with a SQLSTATE must not change the error's Kind, so
	// errors.Is against an untagged sentinel of the same kind still
	// matches.
	if !errors.Is(e, ExecutionError(nil, "")) {
		t.Error("WithSQLState changed the error's Kind identity")
	}
}
