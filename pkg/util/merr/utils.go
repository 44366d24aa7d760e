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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case streamError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(streamError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(streamError); ok {
		return merr.errType
	}

	return SystemError
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(streamError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// 写入相关错误封装。
func WrapErrStreamCorrupted(requested, limit int64, msg ...string) error {
	err := wrapFields(ErrStreamCorrupted,
		value("requested", requested),
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStreamNotClosed(depth int, msg ...string) error {
	err := wrapFields(ErrStreamNotClosed, value("depth", depth))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 读取相关错误封装。
func WrapErrStreamTruncated(offset, need, size int, msg ...string) error {
	err := wrapFields(ErrStreamTruncated,
		value("offset", offset),
		value("need", need),
		value("size", size),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStreamMalformed(offset int, reason string) error {
	return wrapFieldsWithDesc(ErrStreamMalformed, reason, value("offset", offset))
}

func WrapErrTagMismatch(offset int, expected, actual any) error {
	return wrapFields(ErrTagMismatch,
		value("offset", offset),
		value("expected", expected),
		value("actual", actual),
	)
}

func WrapErrSizeMismatch(offset int, declared uint64, requested int) error {
	return wrapFields(ErrSizeMismatch,
		value("offset", offset),
		value("declared", declared),
		value("requested", requested),
	)
}

func WrapErrInvalidReference(kind string, index uint64, size int) error {
	return wrapFields(ErrInvalidReference,
		value("kind", kind),
		value("index", index),
		value("size", size),
	)
}

func WrapErrSchemaMismatch(what string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSchemaMismatch, what)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnknownOpcode(offset int, tag byte) error {
	return wrapFields(ErrUnknownOpcode, value("offset", offset), value("tag", tag))
}

func WrapErrCountOutOfBounds(count uint64, limit uint64) error {
	return wrapFields(ErrCountOutOfBounds, value("count", count), value("limit", limit))
}

func WrapErrUnreadOpcodesLeft(block string, left uint32) error {
	return wrapFields(ErrUnreadOpcodesLeft, value("block", block), value("left", left))
}

// 文件表相关错误封装。
func WrapErrTablesInvalid(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrTablesInvalid, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrVersionUnsupported(version, supported string) error {
	return wrapFields(ErrVersionUnsupported,
		value("version", version),
		value("supported", supported),
	)
}

func WrapErrChecksumMismatch(object int, expected, actual uint32) error {
	return wrapFields(ErrChecksumMismatch,
		value("object", object),
		value("expected", fmt.Sprintf("%08x", expected)),
		value("actual", fmt.Sprintf("%08x", actual)),
	)
}

// 类型系统相关错误封装。
func WrapErrTypeNotFound(name any, msg ...string) error {
	err := wrapFields(ErrTypeNotFound, value("type", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrObjectNotCreatable(class string, msg ...string) error {
	err := wrapFields(ErrObjectNotCreatable, value("class", class))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTypeAlreadyExist(name string, msg ...string) error {
	err := wrapFields(ErrTypeAlreadyExist, value("type", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPropertyNotFound(class, property string) error {
	return wrapFields(ErrPropertyNotFound, value("class", class), value("property", property))
}

func WrapErrUnsupportedDataType(typ any, msg ...string) error {
	err := wrapFields(ErrUnsupportedDataType, value("type", typ))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 保存/加载流程相关错误封装。
func WrapErrImportFailed(path string, class string, cause error) error {
	err := wrapFields(ErrImportFailed, value("path", path), value("class", class))
	if cause != nil {
		err = errors.Wrap(err, cause.Error())
	}
	return err
}

func WrapErrSaveCanceled(saved int, cause error) error {
	err := wrapFields(ErrSaveCanceled, value("saved", saved))
	if cause != nil {
		err = errors.Wrap(err, cause.Error())
	}
	return err
}

// IO 相关错误封装。
func WrapErrIoFailed(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrIoFailed, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtStr, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err streamError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err streamError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
