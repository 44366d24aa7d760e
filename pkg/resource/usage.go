package resource

import (
	"bytes"
	"context"

	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// ExtractUsedResources 收集 roots 保存时会引用的外部资源，返回路径到引用类数的映射。
// 同一路径以不同类引用时计数大于 1。
func ExtractUsedResources(ctx context.Context, roots []rtti.Object, opts ...Option) (map[string]int, error) {
	o := newOptions(opts)
	c := newCollector(o, roots)
	defer c.close()
	if err := c.collect(ctx); err != nil {
		return nil, err
	}

	used := make(map[string]int)
	for _, key := range c.refs.SyncResources.Values() {
		used[key.Path]++
	}
	for _, key := range c.refs.AsyncResources.Values() {
		used[key.Path]++
	}
	return used, nil
}

// CloneObject 通过一次内存中的保存与加载深拷贝 obj 及其子对象。
//
// 副本没有父对象；指向 obj 子树之外的指针在副本中为空。
// 资源引用保留路径和类，只有配置了 Importer 时才会重新解析。
func CloneObject(ctx context.Context, obj rtti.Object, opts ...Option) (rtti.Object, error) {
	if obj == nil {
		return nil, merr.WrapErrParameterMissing("obj")
	}
	var buf bytes.Buffer
	saveOpts := append(append([]Option{}, opts...), WithProtected(false))
	if _, err := SaveFile(ctx, &buf, []rtti.Object{obj}, saveOpts...); err != nil {
		return nil, err
	}
	loadOpts := append(append([]Option{}, opts...), WithRoot(nil))
	res, err := LoadFile(ctx, buf.Bytes(), loadOpts...)
	if err != nil {
		return nil, err
	}
	return res.Roots[0], nil
}
