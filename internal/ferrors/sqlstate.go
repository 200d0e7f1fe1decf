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
SQLSTATE classification for ExecutionError.

The opaque SQL engine this core sits under reports failures as plain
messages; when those failures are known-shaped (table/column not found,
syntax error, constraint violation) the engine is expected to tag them
with one of these standard 5-character SQLSTATE codes so that ODBC/JDBC
style drivers layered on top of webdb can classify failures without
parsing message text.
*/
package ferrors

// SQLSTATE is a standard 5-character SQL error classification code.
type SQLSTATE string

const (
	SQLStateSuccess       SQLSTATE = "00000"
	SQLStateNoData        SQLSTATE = "02000"
	SQLStateConnectionErr SQLSTATE = "08000"
	SQLStateDataException SQLSTATE = "22000"
	SQLStateIntegrity     SQLSTATE = "23000"
	SQLStateSyntaxError   SQLSTATE = "42000"
	SQLStateTableNotFound SQLSTATE = "42S02"
	SQLStateColumnNotFound SQLSTATE = "42S22"
	SQLStateGeneralError  SQLSTATE = "HY000"
	SQLStateInternalError SQLSTATE = "XX000"
)

// Class returns the 2-character class prefix of a SQLSTATE.
func (s SQLSTATE) Class() string {
	if len(s) >= 2 {
		return string(s[:2])
	}
	return "HY"
}

// IsError reports whether the SQLSTATE class denotes an error (i.e. is
// neither success, warning, nor no-data).
func (s SQLSTATE) IsError() bool {
	switch s.Class() {
	case "00", "01", "02":
		return false
	default:
		return true
	}
}

// WithSQLState attaches a SQLSTATE to an ExecutionError's detail text so
// that it round-trips through Error() without a separate field on the
// hot path of ordinary (non-execution) errors.
func (e *Error) WithSQLState(state SQLSTATE) *Error {
	e.Message = e.Message + " [" + string(state) + "]"
	return e
}
