package filetables

import (
	"fmt"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// Validate 检查所有下标都在表内、所有区段都落在 dataSize 字节的数据区内，
// 并且父对象总是排在子对象之前。
func (t *Tables) Validate(dataSize uint64) error {
	if len(t.Names) == 0 || len(t.Types) == 0 || len(t.Properties) == 0 ||
		len(t.Imports) == 0 || len(t.Exports) == 0 || len(t.Buffers) == 0 {
		return merr.WrapErrTablesInvalid("missing null entry")
	}
	for i, e := range t.Types[1:] {
		if err := checkIndex("type name", i+1, e.Name, len(t.Names)); err != nil {
			return err
		}
	}
	for i, e := range t.Properties[1:] {
		if err := checkIndex("property class", i+1, e.Class, len(t.Types)); err != nil {
			return err
		}
		if err := checkIndex("property name", i+1, e.Name, len(t.Names)); err != nil {
			return err
		}
		if err := checkIndex("property type", i+1, e.Type, len(t.Types)); err != nil {
			return err
		}
	}
	for i, e := range t.Imports[1:] {
		if e.Path == "" {
			return merr.WrapErrTablesInvalid(fmt.Sprintf("import %d has empty path", i+1))
		}
		if err := checkIndex("import class", i+1, e.Class, len(t.Types)); err != nil {
			return err
		}
	}
	objects := t.ObjectsSize()
	for i, e := range t.Exports[1:] {
		index := i + 1
		if err := checkIndex("export class", index, e.Class, len(t.Types)); err != nil {
			return err
		}
		if e.Class == 0 {
			return merr.WrapErrTablesInvalid(fmt.Sprintf("export %d has no class", index))
		}
		if int(e.Parent) >= index {
			return merr.WrapErrTablesInvalid(fmt.Sprintf("export %d has parent %d that is not saved before it", index, e.Parent))
		}
		if err := checkRange("export", index, e.Offset, e.Size, objects); err != nil {
			return err
		}
	}
	for i, e := range t.Buffers[1:] {
		if e.Offset < objects {
			return merr.WrapErrTablesInvalid(fmt.Sprintf("buffer %d overlaps object data", i+1))
		}
		if err := checkRange("buffer", i+1, e.Offset, e.Size, dataSize); err != nil {
			return err
		}
	}
	if objects > dataSize {
		return merr.WrapErrTablesInvalid(fmt.Sprintf("object data needs %d bytes, file has %d", objects, dataSize))
	}
	return nil
}

func checkIndex(what string, entry int, index uint32, size int) error {
	if int(index) >= size {
		return merr.WrapErrTablesInvalid(fmt.Sprintf("%s index %d of entry %d out of range %d", what, index, entry, size))
	}
	return nil
}

func checkRange(what string, entry int, offset, size, limit uint64) error {
	if offset > limit || size > limit-offset {
		return merr.WrapErrTablesInvalid(fmt.Sprintf("%s %d range [%d, +%d) exceeds %d", what, entry, offset, size, limit))
	}
	return nil
}
