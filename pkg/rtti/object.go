package rtti

import (
	"context"
	"reflect"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
)

// Object 是可以被句柄引用、按类创建的对象。
// 实现方式是在结构体中嵌入 ObjectBase。
type Object interface {
	stream.Object
	stream.Retainer
	objectBase() *ObjectBase
}

// ObjectBase 保存对象的类、父对象和引用计数。
type ObjectBase struct {
	class  *ClassType
	parent Object
	refs   atomic.Int32
}

func (o *ObjectBase) objectBase() *ObjectBase {
	return o
}

// Class 返回对象绑定的类，未绑定时为 nil。
// 通过 Registry.New 创建或经过 Registry.ClassOf 的对象都已绑定。
func (o *ObjectBase) Class() stream.Type {
	if o.class == nil {
		return nil
	}
	return o.class
}

func (o *ObjectBase) Parent() stream.Object {
	if o.parent == nil {
		return nil
	}
	return o.parent
}

func (o *ObjectBase) SetParent(parent Object) {
	o.parent = parent
}

func (o *ObjectBase) Retain() {
	o.refs.Inc()
}

func (o *ObjectBase) Release() {
	o.refs.Dec()
}

// RefCount 返回当前被流持有的次数。
func (o *ObjectBase) RefCount() int32 {
	return o.refs.Load()
}

// ParentOf 返回 obj 的父对象。
func ParentOf(obj Object) Object {
	return obj.objectBase().parent
}

// SetParentOf 把 obj 挂到 parent 下。
func SetParentOf(obj, parent Object) {
	obj.objectBase().parent = parent
}

// HasParent 报告 parent 是否在 obj 的父链上（obj 本身也算）。
func HasParent(obj, parent Object) bool {
	for cur := obj; cur != nil; cur = cur.objectBase().parent {
		if cur == parent {
			return true
		}
	}
	return false
}

// PostLoader 由需要在整个文件加载完成后做收尾工作的对象实现。
type PostLoader interface {
	OnPostLoad(ctx context.Context) error
}

// PropertyMigrator 由需要接管已删除或已改类型属性的对象实现。
//
// original 是写入时的类型，value 是按该类型读出的值；
// 写入时的类型在当前进程中不存在时 original 为 nil，value 无效。
// 返回 false 表示放弃该值。
type PropertyMigrator interface {
	MigrateProperty(ctx context.Context, name stream.StringID, original Type, value reflect.Value) bool
}

var objectInterface = reflect.TypeOf((*Object)(nil)).Elem()

// handleType 是指向对象的强引用，写成对象指针记录。
type handleType struct {
	name   string
	goType reflect.Type
}

func (t *handleType) Name() string         { return t.name }
func (t *handleType) Kind() Kind           { return KindHandle }
func (t *handleType) GoType() reflect.Type { return t.goType }

func (t *handleType) Equal(a, b reflect.Value) bool {
	if a.IsNil() || b.IsNil() {
		return a.IsNil() && b.IsNil()
	}
	return a.Interface() == b.Interface()
}

func (t *handleType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	if data.IsNil() {
		w.WritePointer(nil)
		return
	}
	w.WritePointer(data.Interface().(stream.Object))
}

func (t *handleType) ReadBinary(ctx context.Context, r *stream.Reader, data reflect.Value) error {
	obj := r.ReadPointer()
	if err := r.Err(); err != nil {
		return err
	}
	if obj == nil {
		data.Set(reflect.Zero(data.Type()))
		return nil
	}
	v := reflect.ValueOf(obj)
	if !v.Type().AssignableTo(data.Type()) {
		log.Ctx(ctx).RatedWarn(1, "pointer target has incompatible class, reference dropped",
			zap.String("handle", t.name),
			zap.String("target", v.Type().String()))
		data.Set(reflect.Zero(data.Type()))
		return nil
	}
	data.Set(v)
	return nil
}

// WriteObject 把对象的属性写成一个复合块。
func WriteObject(ctx context.Context, w *stream.Writer, obj Object) error {
	class := obj.objectBase().class
	if class == nil {
		c, err := Default().ClassOf(obj)
		if err != nil {
			return err
		}
		class = c
	}
	class.WriteBinary(ctx, w, reflect.ValueOf(obj).Elem(), reflect.Value{})
	return w.Err()
}

// ReadObject 从复合块读取对象的属性。
func ReadObject(ctx context.Context, r *stream.Reader, obj Object) error {
	class := obj.objectBase().class
	if class == nil {
		c, err := Default().ClassOf(obj)
		if err != nil {
			return err
		}
		class = c
	}
	return class.ReadBinary(ctx, r, reflect.ValueOf(obj).Elem())
}
