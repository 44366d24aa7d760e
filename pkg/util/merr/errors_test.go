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
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrTypeNotFound("Vector3")
	err = errors.Wrap(err, "failed to resolve type table")
	s.ErrorIs(err, ErrTypeNotFound)
	s.Equal(Code(ErrTypeNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(errors.New("plain")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newStreamError("new error", ErrTypeNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrTypeNotFound))
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(WrapErrStreamTruncated(10, 4, 12)))
	s.Equal(SystemError, GetErrorType(WrapErrStreamCorrupted(1<<20, 1<<10)))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.Equal(InputError, GetErrorType(WrapErrAsInputError(ErrIoFailed)))
	s.Equal("input_error", InputError.String())
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(WrapErrImportFailed("/a/b.mesh", "Mesh", os.ErrNotExist)))
	s.False(IsRetryableErr(ErrSchemaMismatch))
	s.False(IsRetryableErr(errors.New("plain")))
	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "save")))
}

func (s *ErrSuite) TestWrap() {
	// 写入相关错误。
	s.ErrorIs(WrapErrStreamCorrupted(1<<20, 1<<10, "page allocation"), ErrStreamCorrupted)
	s.ErrorIs(WrapErrStreamNotClosed(2, "writer"), ErrStreamNotClosed)

	// 读取相关错误。
	s.ErrorIs(WrapErrStreamTruncated(3, 4, 5, "varint"), ErrStreamTruncated)
	s.ErrorIs(WrapErrStreamMalformed(3, "varint too long"), ErrStreamMalformed)
	s.ErrorIs(WrapErrTagMismatch(0, "DataRaw", "DataName"), ErrTagMismatch)
	s.ErrorIs(WrapErrSizeMismatch(0, 4, 8), ErrSizeMismatch)
	s.ErrorIs(WrapErrInvalidReference("name", 10, 2), ErrInvalidReference)
	s.ErrorIs(WrapErrSchemaMismatch("property x", "Vector3"), ErrSchemaMismatch)
	s.ErrorIs(WrapErrUnknownOpcode(7, 0xff), ErrUnknownOpcode)
	s.ErrorIs(WrapErrCountOutOfBounds(10, 4), ErrCountOutOfBounds)
	s.ErrorIs(WrapErrUnreadOpcodesLeft("array", 2), ErrUnreadOpcodesLeft)

	// 文件表相关错误。
	s.ErrorIs(WrapErrTablesInvalid("bad magic", "header"), ErrTablesInvalid)
	s.ErrorIs(WrapErrVersionUnsupported("2.0.0", "1.x"), ErrVersionUnsupported)
	s.ErrorIs(WrapErrChecksumMismatch(1, 0xdeadbeef, 0xbeefdead), ErrChecksumMismatch)

	// 类型系统相关错误。
	s.ErrorIs(WrapErrTypeNotFound("Vector3", "type table"), ErrTypeNotFound)
	s.ErrorIs(WrapErrObjectNotCreatable("Abstract", "exports"), ErrObjectNotCreatable)
	s.ErrorIs(WrapErrTypeAlreadyExist("Vector3"), ErrTypeAlreadyExist)
	s.ErrorIs(WrapErrPropertyNotFound("Vector3", "w"), ErrPropertyNotFound)
	s.ErrorIs(WrapErrUnsupportedDataType("chan int", "reflect"), ErrUnsupportedDataType)

	// 保存/加载流程相关错误。
	s.ErrorIs(WrapErrImportFailed("/a/b.mesh", "Mesh", nil), ErrImportFailed)
	s.ErrorIs(WrapErrSaveCanceled(3, context.Canceled), ErrSaveCanceled)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("sink closed", "flush"), ErrIoFailed)

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalid(8, 1, "failed to create"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("page size %d too small", 1), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("roots", "nothing to save"), ErrParameterMissing)
}

func (s *ErrSuite) TestWrapFieldsMessage() {
	err := WrapErrSizeMismatch(12, 4, 8)
	s.Equal("data size mismatch[offset=12][declared=4][requested=8]", err.Error())

	err = WrapErrStreamMalformed(3, "varint too long")
	s.Equal("malformed opcode stream[offset=3]: varint too long", err.Error())
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrTagMismatch(0, 1, 2), WrapErrChecksumMismatch(1, 1, 2))
	s.Equal(Code(ErrChecksumMismatch), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
