package rtti

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// TagName 是结构体字段上控制属性名的标签。
//
//	Scale float32 `objstream:"scale"`
//	Cache []byte  `objstream:"-"`
//	Dirty bool    `objstream:"dirty,transient"`
const TagName = "objstream"

var objectBaseType = reflect.TypeOf(ObjectBase{})

// Registry 按名称和 Go 类型索引所有可序列化类型。
//
// 切片、数组、句柄和未注册的结构体在第一次用到时自动生成并注册，
// 同名的派生类型会复用已经注册的实例。
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Type
	byGo   map[reflect.Type]Type
}

func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Type),
		byGo:   make(map[reflect.Type]Type),
	}
	for _, t := range builtinTypes {
		r.add(t)
	}
	for _, t := range []Type{
		nameType{},
		typeRefType{},
		inlineBufferType{},
		asyncBufferType{},
		resourceRefType{},
		resourceRefType{async: true},
	} {
		r.add(t)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default 返回进程级的默认注册表。
func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) add(t Type) {
	r.byName[t.Name()] = t
	r.byGo[t.GoType()] = t
}

// Register 注册一个自定义类型。
func (r *Registry) Register(t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[t.Name()]; ok {
		return merr.WrapErrTypeAlreadyExist(t.Name())
	}
	r.add(t)
	return nil
}

// RegisterClass 以 name 注册 sample 的结构体类型，sample 可以是结构体或指向结构体的指针。
// 嵌入了 ObjectBase 的结构体注册为对象类。
func (r *Registry) RegisterClass(name string, sample any) (*ClassType, error) {
	rt := reflect.TypeOf(sample)
	if rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, merr.WrapErrParameterInvalidMsg("class %s must be a struct, got %v", name, rt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, merr.WrapErrTypeAlreadyExist(name)
	}
	if t, ok := r.byGo[rt]; ok {
		return nil, merr.WrapErrTypeAlreadyExist(name, "registered as "+t.Name())
	}
	return r.buildClass(name, rt)
}

// MustRegisterClass 与 RegisterClass 相同，失败时 panic。
func (r *Registry) MustRegisterClass(name string, sample any) *ClassType {
	c, err := r.RegisterClass(name, sample)
	if err != nil {
		panic(err)
	}
	return c
}

// RegisterClass 在默认注册表中注册类。
func RegisterClass(name string, sample any) (*ClassType, error) {
	return defaultRegistry.RegisterClass(name, sample)
}

func MustRegisterClass(name string, sample any) *ClassType {
	return defaultRegistry.MustRegisterClass(name, sample)
}

// FindType 按名称查找类型。
func (r *Registry) FindType(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// FindClass 按名称查找类。
func (r *Registry) FindClass(name string) (*ClassType, bool) {
	t, ok := r.FindType(name)
	if !ok {
		return nil, false
	}
	c, ok := t.(*ClassType)
	return c, ok
}

// TypeOf 返回 Go 类型 rt 对应的类型，必要时自动生成。
func (r *Registry) TypeOf(rt reflect.Type) (Type, error) {
	r.mu.RLock()
	t, ok := r.byGo[rt]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typeOfLocked(rt)
}

// ClassOf 返回对象的类，并把类绑定到对象上。
func (r *Registry) ClassOf(obj Object) (*ClassType, error) {
	base := obj.objectBase()
	if base.class != nil {
		return base.class, nil
	}
	t, err := r.TypeOf(reflect.TypeOf(obj).Elem())
	if err != nil {
		return nil, err
	}
	c, ok := t.(*ClassType)
	if !ok {
		return nil, merr.WrapErrTypeNotFound(reflect.TypeOf(obj).String(), "not a class")
	}
	base.class = c
	return c, nil
}

// New 按类名创建对象。
func (r *Registry) New(className string) (Object, error) {
	c, ok := r.FindClass(className)
	if !ok {
		return nil, merr.WrapErrTypeNotFound(className)
	}
	return c.New()
}

// Bind 把已经构造好的对象绑定到默认注册表中的类上。
func Bind[T Object](obj T) T {
	if _, err := defaultRegistry.ClassOf(obj); err != nil {
		panic(err)
	}
	return obj
}

func (r *Registry) typeOfLocked(rt reflect.Type) (Type, error) {
	if t, ok := r.byGo[rt]; ok {
		return t, nil
	}

	switch {
	case rt.Kind() == reflect.Interface && rt.Implements(objectInterface):
		name := "ptr<Object>"
		if rt != objectInterface {
			name = fmt.Sprintf("ptr<%s>", rt.Name())
		}
		return r.derived(rt, &handleType{name: name, goType: rt})

	case rt.Kind() == reflect.Pointer && rt.Implements(objectInterface):
		pointed, err := r.typeOfLocked(rt.Elem())
		if err != nil {
			return nil, err
		}
		return r.derived(rt, &handleType{name: fmt.Sprintf("ptr<%s>", pointed.Name()), goType: rt})

	case rt.Kind() == reflect.Slice:
		elem, err := r.typeOfLocked(rt.Elem())
		if err != nil {
			return nil, err
		}
		return r.derived(rt, &arrayType{
			name:   fmt.Sprintf("array<%s>", elem.Name()),
			goType: reflect.SliceOf(elem.GoType()),
			elem:   elem,
		})

	case rt.Kind() == reflect.Array:
		elem, err := r.typeOfLocked(rt.Elem())
		if err != nil {
			return nil, err
		}
		return r.derived(rt, &nativeArrayType{
			name:   fmt.Sprintf("%s[%d]", elem.Name(), rt.Len()),
			goType: reflect.ArrayOf(rt.Len(), elem.GoType()),
			elem:   elem,
		})

	case rt.Kind() == reflect.Struct:
		if rt.Name() == "" {
			return nil, merr.WrapErrUnsupportedDataType(rt.String(), "anonymous struct")
		}
		if existing, ok := r.byName[rt.Name()]; ok {
			return nil, merr.WrapErrTypeAlreadyExist(rt.Name(), "registered for "+existing.GoType().String())
		}
		return r.buildClass(rt.Name(), rt)
	}

	if t, ok := builtinTypes[rt.Kind()]; ok {
		r.byGo[rt] = t
		return t, nil
	}
	return nil, merr.WrapErrUnsupportedDataType(rt.String())
}

// derived 注册派生类型，同名类型已存在时复用它。
func (r *Registry) derived(rt reflect.Type, t Type) (Type, error) {
	if existing, ok := r.byName[t.Name()]; ok && existing.Kind() == t.Kind() {
		r.byGo[rt] = existing
		return existing, nil
	}
	r.byName[t.Name()] = t
	r.byGo[rt] = t
	return t, nil
}

func (r *Registry) buildClass(name string, rt reflect.Type) (*ClassType, error) {
	c := &ClassType{
		name:   name,
		goType: rt,
		object: reflect.PointerTo(rt).Implements(objectInterface),
		byName: make(map[string]*Property),
	}
	// 先注册，允许属性通过句柄引用类自身。
	r.byName[name] = c
	r.byGo[rt] = c

	if err := r.collectProperties(c, rt, nil); err != nil {
		delete(r.byName, name)
		delete(r.byGo, rt)
		return nil, err
	}

	def := reflect.New(rt)
	if d, ok := def.Interface().(DefaultsInitializer); ok {
		d.InitDefaults()
	}
	c.defaults = def.Elem()
	return c, nil
}

func (r *Registry) collectProperties(c *ClassType, rt reflect.Type, parent []int) error {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		index := append(append([]int(nil), parent...), i)
		if f.Type == objectBaseType {
			continue
		}
		tag, hasTag := f.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		// 嵌入的结构体视为基类，字段展开到当前类。
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !hasTag {
			if err := r.collectProperties(c, f.Type, index); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		if _, dup := c.byName[name]; dup {
			return merr.WrapErrParameterInvalidMsg("class %s has duplicated property %s", c.name, name)
		}
		typ, err := r.typeOfLocked(f.Type)
		if err != nil {
			return errors.Wrapf(err, "class %s property %s", c.name, name)
		}
		p := &Property{
			name:      name,
			owner:     c,
			typ:       typ,
			index:     index,
			transient: opts == "transient",
		}
		c.properties = append(c.properties, p)
		c.byName[name] = p
	}
	return nil
}
