package rtti

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// Property 是类的一个属性，对应结构体的一个导出字段。
type Property struct {
	name      string
	owner     *ClassType
	typ       Type
	index     []int
	transient bool
}

func (p *Property) Name() string       { return p.name }
func (p *Property) Owner() stream.Type { return p.owner }
func (p *Property) Type() stream.Type  { return p.typ }
func (p *Property) DataType() Type     { return p.typ }
func (p *Property) Class() *ClassType  { return p.owner }
func (p *Property) Transient() bool    { return p.transient }
func (p *Property) Index() []int       { return p.index }

func (p *Property) value(data reflect.Value) reflect.Value {
	return data.FieldByIndex(p.index)
}

// DefaultsInitializer 由需要非零默认值的结构体实现。
// 类的默认值是零值再调用 InitDefaults 的结果，只有与默认值不同的属性会被写入。
type DefaultsInitializer interface {
	InitDefaults()
}

// ClassType 描述一个结构体类型。
//
// 写入时每个属性写成 Property、DataTypeRef 和一个包住值的跳过块，
// 读取端因此可以丢弃已删除或已改类型的属性。
type ClassType struct {
	name       string
	goType     reflect.Type
	object     bool
	properties []*Property
	byName     map[string]*Property
	defaults   reflect.Value
}

var _ Type = (*ClassType)(nil)

func (c *ClassType) Name() string         { return c.name }
func (c *ClassType) Kind() Kind           { return KindClass }
func (c *ClassType) GoType() reflect.Type { return c.goType }

// IsObject 报告该类是否嵌入了 ObjectBase，可以被句柄引用和按名创建。
func (c *ClassType) IsObject() bool {
	return c.object
}

func (c *ClassType) Properties() []*Property {
	return c.properties
}

func (c *ClassType) FindProperty(name string) *Property {
	return c.byName[name]
}

// Default 返回类的默认值，调用方不能修改它。
func (c *ClassType) Default() reflect.Value {
	return c.defaults
}

// New 创建该类的一个对象。
func (c *ClassType) New() (Object, error) {
	if !c.object {
		return nil, merr.WrapErrObjectNotCreatable(c.name)
	}
	ptr := reflect.New(c.goType)
	if d, ok := ptr.Interface().(DefaultsInitializer); ok {
		d.InitDefaults()
	}
	obj := ptr.Interface().(Object)
	obj.objectBase().class = c
	return obj, nil
}

func (c *ClassType) Equal(a, b reflect.Value) bool {
	for _, p := range c.properties {
		if p.transient {
			continue
		}
		if !p.typ.Equal(p.value(a), p.value(b)) {
			return false
		}
	}
	return true
}

func (c *ClassType) WriteBinary(ctx context.Context, w *stream.Writer, data, def reflect.Value) {
	if !def.IsValid() {
		def = c.defaults
	}
	w.BeginCompound(c)
	for _, p := range c.properties {
		if p.transient {
			continue
		}
		v, dv := p.value(data), p.value(def)
		if p.typ.Equal(v, dv) {
			continue
		}
		w.WriteProperty(p)
		w.WriteType(p.typ)
		w.BeginSkipBlock()
		p.typ.WriteBinary(ctx, w, v, dv)
		w.EndSkipBlock()
	}
	w.EndCompound()
}

func (c *ClassType) ReadBinary(ctx context.Context, r *stream.Reader, data reflect.Value) error {
	n := r.EnterCompound()
	if err := r.Err(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		rp := r.ReadProperty()
		rt := r.ReadType()
		r.EnterSkipBlock()
		if err := r.Err(); err != nil {
			return err
		}

		p := c.match(rp)
		if p != nil && rt.Type == stream.Type(p.typ) {
			if err := p.typ.ReadBinary(ctx, r, p.value(data)); err != nil {
				return err
			}
			r.LeaveSkipBlock()
			continue
		}
		if err := c.salvage(ctx, r, data, p, rp, rt); err != nil {
			return err
		}
	}
	r.LeaveCompound()
	return r.Err()
}

func (c *ClassType) match(rp stream.ResolvedProperty) *Property {
	if p, ok := rp.Property.(*Property); ok && p.owner == c {
		return p
	}
	return c.byName[string(rp.Name)]
}

// salvage 处理已删除或已改类型的属性，此时 SkipHeader 已经读过。
func (c *ClassType) salvage(ctx context.Context, r *stream.Reader, data reflect.Value, p *Property, rp stream.ResolvedProperty, rt stream.ResolvedType) error {
	logger := log.Ctx(ctx).With(
		log.FieldClass(c.name),
		zap.String("property", string(rp.Name)),
		zap.String("savedType", string(rt.Name)))

	if !r.Protected() {
		return merr.WrapErrSchemaMismatch(string(rp.Name), "class "+c.name, "saved as "+string(rt.Name))
	}

	original, known := rt.Type.(Type)
	if !known {
		if err := r.DiscardSkipBlock(); err != nil {
			return err
		}
		if !c.migrate(ctx, data, rp.Name, nil, reflect.Value{}) {
			logger.RatedWarn(1, "saved type of property no longer exists, value dropped")
		}
		return nil
	}

	value := New(original)
	if err := original.ReadBinary(ctx, r, value); err != nil {
		return err
	}
	r.LeaveSkipBlock()
	if err := r.Err(); err != nil {
		return err
	}

	if p != nil && convertValue(value, p.value(data)) {
		return nil
	}
	if !c.migrate(ctx, data, rp.Name, original, value) {
		if p == nil {
			logger.RatedWarn(1, "property no longer exists, value dropped")
		} else {
			logger.RatedWarn(1, "property changed type, value dropped",
				zap.String("currentType", p.typ.Name()))
		}
	}
	return nil
}

func (c *ClassType) migrate(ctx context.Context, data reflect.Value, name stream.StringID, original Type, value reflect.Value) bool {
	if !data.CanAddr() {
		return false
	}
	m, ok := data.Addr().Interface().(PropertyMigrator)
	if !ok {
		return false
	}
	return m.MigrateProperty(ctx, name, original, value)
}

// convertValue 在数值类型之间做内建转换。
func convertValue(from, to reflect.Value) bool {
	if !isNumeric(from.Kind()) || !isNumeric(to.Kind()) {
		return false
	}
	to.Set(from.Convert(to.Type()))
	return true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
