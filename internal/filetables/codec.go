package filetables

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// 文件头字段编号。未知字段在解码时被跳过，新版本可以追加字段。
const (
	fieldVersion  protowire.Number = 1
	fieldFlags    protowire.Number = 2
	fieldName     protowire.Number = 3
	fieldType     protowire.Number = 4
	fieldProperty protowire.Number = 5
	fieldImport   protowire.Number = 6
	fieldExport   protowire.Number = 7
	fieldBuffer   protowire.Number = 8
)

// Marshal 把表编码为文件头字节，空项不写出。
func (t *Tables) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
	b = protowire.AppendString(b, t.Version.String())
	b = appendVarint(b, fieldFlags, uint64(t.Flags))

	for _, name := range t.Names[1:] {
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}
	for _, e := range t.Types[1:] {
		b = appendMessage(b, fieldType, appendVarint(nil, 1, uint64(e.Name)))
	}
	for _, e := range t.Properties[1:] {
		var m []byte
		m = appendVarint(m, 1, uint64(e.Class))
		m = appendVarint(m, 2, uint64(e.Name))
		m = appendVarint(m, 3, uint64(e.Type))
		b = appendMessage(b, fieldProperty, m)
	}
	for _, e := range t.Imports[1:] {
		var m []byte
		m = protowire.AppendTag(m, 1, protowire.BytesType)
		m = protowire.AppendString(m, e.Path)
		m = appendVarint(m, 2, uint64(e.Class))
		m = appendVarint(m, 3, protowire.EncodeBool(e.Async))
		b = appendMessage(b, fieldImport, m)
	}
	for _, e := range t.Exports[1:] {
		var m []byte
		m = appendVarint(m, 1, uint64(e.Class))
		m = appendVarint(m, 2, uint64(e.Parent))
		m = appendVarint(m, 3, e.Offset)
		m = appendVarint(m, 4, e.Size)
		m = appendFixed32(m, 5, e.Checksum)
		b = appendMessage(b, fieldExport, m)
	}
	for _, e := range t.Buffers[1:] {
		var m []byte
		m = appendVarint(m, 1, e.Offset)
		m = appendVarint(m, 2, e.Size)
		m = appendFixed32(m, 3, e.Checksum)
		b = appendMessage(b, fieldBuffer, m)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// Unmarshal 解码文件头字节。只做语法检查，下标的合法性由 Validate 检查。
func Unmarshal(b []byte) (*Tables, error) {
	t := New(0)
	var version string
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldVersion && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			version = v
			return n, nil
		case num == fieldFlags && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			t.Flags = Flags(v)
			return n, nil
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.Names = append(t.Names, v)
			return n, nil
		case num == fieldType && typ == protowire.BytesType:
			var e TypeEntry
			n, err := consumeMessage(b, func(num protowire.Number, v uint64) {
				if num == 1 {
					e.Name = uint32(v)
				}
			}, nil)
			t.Types = append(t.Types, e)
			return n, err
		case num == fieldProperty && typ == protowire.BytesType:
			var e PropertyEntry
			n, err := consumeMessage(b, func(num protowire.Number, v uint64) {
				switch num {
				case 1:
					e.Class = uint32(v)
				case 2:
					e.Name = uint32(v)
				case 3:
					e.Type = uint32(v)
				}
			}, nil)
			t.Properties = append(t.Properties, e)
			return n, err
		case num == fieldImport && typ == protowire.BytesType:
			var e ImportEntry
			n, err := consumeMessage(b, func(num protowire.Number, v uint64) {
				switch num {
				case 2:
					e.Class = uint32(v)
				case 3:
					e.Async = protowire.DecodeBool(v)
				}
			}, func(num protowire.Number, v []byte) {
				if num == 1 {
					e.Path = string(v)
				}
			})
			t.Imports = append(t.Imports, e)
			return n, err
		case num == fieldExport && typ == protowire.BytesType:
			var e ExportEntry
			n, err := consumeMessage(b, func(num protowire.Number, v uint64) {
				switch num {
				case 1:
					e.Class = uint32(v)
				case 2:
					e.Parent = uint32(v)
				case 3:
					e.Offset = v
				case 4:
					e.Size = v
				case 5:
					e.Checksum = uint32(v)
				}
			}, nil)
			t.Exports = append(t.Exports, e)
			return n, err
		case num == fieldBuffer && typ == protowire.BytesType:
			var e BufferEntry
			n, err := consumeMessage(b, func(num protowire.Number, v uint64) {
				switch num {
				case 1:
					e.Offset = v
				case 2:
					e.Size = v
				case 3:
					e.Checksum = uint32(v)
				}
			}, nil)
			t.Buffers = append(t.Buffers, e)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}

	v, err := CheckVersion(version)
	if err != nil {
		return nil, err
	}
	t.Version = v
	if !HasBuffers(v) && len(t.Buffers) > 1 {
		return nil, merr.WrapErrTablesInvalid("buffer table present before version " + BuffersVersion.String())
	}
	return t, nil
}

// walkFields 逐个字段回调 fn，fn 返回消耗的字节数，负数表示解析错误。
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return merr.WrapErrTablesInvalid(protowire.ParseError(n).Error())
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return merr.WrapErrTablesInvalid(protowire.ParseError(m).Error())
		}
		b = b[m:]
	}
	return nil
}

// consumeMessage 解码一个嵌套消息，数值字段交给 onNumber，字节字段交给 onBytes。
func consumeMessage(b []byte, onNumber func(protowire.Number, uint64), onBytes func(protowire.Number, []byte)) (int, error) {
	m, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	err := walkFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				onNumber(num, v)
			}
			return n, nil
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n >= 0 {
				onNumber(num, uint64(v))
			}
			return n, nil
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 && onBytes != nil {
				onBytes(num, v)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return n, err
}
