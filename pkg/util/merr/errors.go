// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Opcode stream (writing) related
	ErrStreamCorrupted = newStreamError("opcode stream corrupted", 100, false) // page allocation failed, the whole save must be dropped
	ErrStreamNotClosed = newStreamError("opcode stream still has open blocks", 101, false)

	// Opcode stream (reading) related
	ErrStreamTruncated   = newStreamError("opcode stream truncated", 200, false, WithErrorType(InputError))
	ErrStreamMalformed   = newStreamError("malformed opcode stream", 201, false, WithErrorType(InputError))
	ErrTagMismatch       = newStreamError("opcode tag mismatch", 202, false, WithErrorType(InputError))
	ErrSizeMismatch      = newStreamError("data size mismatch", 203, false, WithErrorType(InputError))
	ErrInvalidReference  = newStreamError("invalid reference index", 204, false, WithErrorType(InputError))
	ErrSchemaMismatch    = newStreamError("schema mismatch", 205, false, WithErrorType(InputError))
	ErrSkipUnsupported   = newStreamError("skip blocks require a protected stream", 206, false)
	ErrUnknownOpcode     = newStreamError("unknown opcode", 207, false, WithErrorType(InputError))
	ErrCountOutOfBounds  = newStreamError("element count out of bounds", 208, false, WithErrorType(InputError))
	ErrUnreadOpcodesLeft = newStreamError("unread opcodes left in block", 209, false, WithErrorType(InputError))

	// File tables related
	ErrTablesInvalid      = newStreamError("invalid file tables", 300, false, WithErrorType(InputError))
	ErrVersionUnsupported = newStreamError("unsupported file format version", 301, false, WithErrorType(InputError))
	ErrChecksumMismatch   = newStreamError("checksum mismatch", 302, false, WithErrorType(InputError))

	// Type system related
	ErrTypeNotFound        = newStreamError("type not found", 400, false)
	ErrObjectNotCreatable  = newStreamError("object class is not creatable", 401, false)
	ErrTypeAlreadyExist    = newStreamError("type already registered", 402, false)
	ErrPropertyNotFound    = newStreamError("property not found", 403, false)
	ErrUnsupportedDataType = newStreamError("unsupported data type", 404, false)

	// Save/load pipeline related
	ErrImportFailed = newStreamError("import failed", 500, true)
	ErrSaveCanceled = newStreamError("save canceled", 501, false)
	ErrNothingToLoad = newStreamError("nothing to load", 502, false)

	// IO related
	ErrIoFailed      = newStreamError("IO failed", 1001, false)
	ErrIoUnexpectEOF = newStreamError("unexpected EOF", 1002, true)

	// Parameter related
	ErrParameterInvalid = newStreamError("invalid parameter", 1100, false)
	ErrParameterMissing = newStreamError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to streamError
	errUnexpected = newStreamError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*streamError)

func WithDetail(detail string) errorOption {
	return func(err *streamError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *streamError) {
		err.errType = etype
	}
}

type streamError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newStreamError(msg string, code int32, retriable bool, options ...errorOption) streamError {
	err := streamError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e streamError) code() int32 {
	return e.errCode
}

func (e streamError) Error() string {
	return e.msg
}

func (e streamError) Detail() string {
	return e.detail
}

func (e streamError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(streamError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
