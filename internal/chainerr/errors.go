/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package chainerr carries the engine's error taxonomy: one Kind per
// externally-observable failure mode, wrapping an underlying cause so
// callers can still errors.Is/errors.As through to os.ErrNotExist etc.
package chainerr

import "fmt"

type Kind string

const (
	IoError                Kind = "io_error"
	SerializationError     Kind = "serialization_error"
	InvalidCredentials     Kind = "invalid_credentials"
	EncryptionError        Kind = "encryption_error"
	DecryptionError        Kind = "decryption_error"
	DatabaseAlreadyExists  Kind = "database_already_exists"
	DatabaseNotFound       Kind = "database_not_found"
	ConfigNotFound         Kind = "config_not_found"
	ValidationError        Kind = "validation_error"
	RecordNotFound         Kind = "record_not_found"
)

// Error is the concrete error type returned by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, chainerr.Sentinel(chainerr.RecordNotFound))
// match any *Error of the same Kind, since Kind is not itself an error
// value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Of reports the Kind of err, or "" if err is not a *Error.
func Of(err error) Kind {
	var e *Error
	if err == nil {
		return ""
	}
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return ""
	}
	return e.Kind
}

// Sentinel returns a zero-message *Error of the given kind, useful as a
// target for errors.Is(err, chainerr.Sentinel(chainerr.RecordNotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// IoErrorf wraps a lower-level I/O failure.
func IoErrorf(cause error, format string, args ...interface{}) *Error {
	return Wrap(IoError, fmt.Sprintf(format, args...), cause)
}
