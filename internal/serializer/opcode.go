package serializer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/lk2023060901/garden-objstream/pkg/resource"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
)

// OpcodeSerializer 把一个对象及其子对象编码为操作码文件。
//
// 注意：传入/传出的对象必须是 rtti.Object。Unmarshal 把文件中的根对象读入 v。
type OpcodeSerializer struct {
	// Registry 为 nil 时使用 rtti.Default()。
	Registry *rtti.Registry
	// Protected 为 true 时按受保护布局写出。
	Protected bool
}

// 编译期断言：确保 OpcodeSerializer 实现了 Serializer 接口。
var _ Serializer = (*OpcodeSerializer)(nil)

func (s OpcodeSerializer) Marshal(v any) ([]byte, error) {
	obj, ok := v.(rtti.Object)
	if !ok {
		return nil, fmt.Errorf("serializer: OpcodeSerializer requires rtti.Object, got %T", v)
	}
	var buf bytes.Buffer
	_, err := resource.SaveFile(context.Background(), &buf, []rtti.Object{obj},
		resource.WithRegistry(s.Registry),
		resource.WithProtected(s.Protected))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s OpcodeSerializer) Unmarshal(data []byte, v any) error {
	obj, ok := v.(rtti.Object)
	if !ok {
		return fmt.Errorf("serializer: OpcodeSerializer requires rtti.Object, got %T", v)
	}
	_, err := resource.LoadFile(context.Background(), data,
		resource.WithRegistry(s.Registry),
		resource.WithRoot(obj))
	return err
}
