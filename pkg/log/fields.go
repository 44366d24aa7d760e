package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldClass 返回对象类名字段。
func FieldClass(class string) zap.Field {
	return zap.String("class", class)
}

// FieldPath 返回资源路径字段。
func FieldPath(path string) zap.Field {
	return zap.String("path", path)
}
