/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package ferrors provides the tagged error taxonomy every fallible entry
point of the virtual filesystem core returns instead of panicking or
letting a host-boundary exception cross into caller code.

Kinds:

	Invalid          bad argument, missing option, unregistered file
	KeyError         unknown prepared-statement id or file id
	IoError          host-runtime read/write/open failure
	HttpError        non-2xx response or missing required range support
	ExecutionError   engine-reported query or prepare failure
	AlreadyRegistered  name collision with an incompatible url
	Busy             drop attempted on a file still held/pinned

Errors the core detects itself are returned tagged with one of these
kinds. Panics are not recovered: a panic raised inside the engine
propagates to the caller of the core entry point untagged.
*/
package ferrors

import "fmt"

// Kind identifies one of the error categories in the core's taxonomy.
type Kind string

const (
	KindInvalid          Kind = "INVALID"
	KindKeyError         Kind = "KEY_ERROR"
	KindIoError          Kind = "IO_ERROR"
	KindHttpError        Kind = "HTTP_ERROR"
	KindExecutionError   Kind = "EXECUTION_ERROR"
	KindAlreadyRegistered Kind = "ALREADY_REGISTERED"
	KindBusy             Kind = "BUSY"
	KindNotSupported     Kind = "NOT_SUPPORTED"
)

// Error is the structured error type returned by every fallible core
// operation.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int // only meaningful for KindHttpError
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindHttpError {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is comparisons against a Kind sentinel created via
// one of the constructors below (compares Kind only, not Message).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Invalid builds a KindInvalid error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// KeyErrorf builds a KindKeyError error.
func KeyErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindKeyError, Message: fmt.Sprintf(format, args...)}
}

// IoError builds a KindIoError error, optionally wrapping cause.
func IoError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindIoError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// HttpError builds a KindHttpError error carrying the HTTP status code.
func HttpError(status int, format string, args ...any) *Error {
	return &Error{Kind: KindHttpError, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

// ExecutionError builds a KindExecutionError error, optionally wrapping cause.
func ExecutionError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindExecutionError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AlreadyRegistered builds a KindAlreadyRegistered error for name.
func AlreadyRegistered(name string) *Error {
	return &Error{Kind: KindAlreadyRegistered, Message: fmt.Sprintf("already registered: %s", name)}
}

// Busy builds a KindBusy error, e.g. for a drop attempt on a pinned file.
func Busy(format string, args ...any) *Error {
	return &Error{Kind: KindBusy, Message: fmt.Sprintf(format, args...)}
}

// NotSupported builds a KindNotSupported error, e.g. writes to HTTP files.
func NotSupported(format string, args ...any) *Error {
	return &Error{Kind: KindNotSupported, Message: fmt.Sprintf(format, args...)}
}

// Is* helpers for callers that want to branch on kind without importing
// the Kind constants directly.

func IsBusy(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindBusy
}

func IsKeyError(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindKeyError
}

func IsAlreadyRegistered(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindAlreadyRegistered
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
