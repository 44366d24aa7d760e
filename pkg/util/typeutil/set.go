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

package typeutil

import (
	"sync"
)

type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elements ...T) Set[T] {
	set := make(Set[T])
	set.Insert(elements...)
	return set
}

// Insert 将元素插入集合。
// 如果元素已存在，则忽略该元素。
func (set Set[T]) Insert(elements ...T) {
	for i := range elements {
		set[elements[i]] = struct{}{}
	}
}

// Contain 判断一个或多个元素是否都存在于集合中。
func (set Set[T]) Contain(elements ...T) bool {
	for i := range elements {
		_, ok := set[elements[i]]
		if !ok {
			return false
		}
	}
	return true
}

// Remove 从集合中移除元素。
func (set Set[T]) Remove(elements ...T) {
	for i := range elements {
		delete(set, elements[i])
	}
}

// Collect 返回集合中所有元素的切片，顺序不确定。
func (set Set[T]) Collect() []T {
	elements := make([]T, 0, len(set))
	for elem := range set {
		elements = append(elements, elem)
	}
	return elements
}

func (set Set[T]) Len() int {
	return len(set)
}

// OrderedSet 按首次插入顺序保存元素。
// 位置从 0 开始，一经分配不会改变；引用表用它为每个键分配稠密下标。
type OrderedSet[T comparable] struct {
	index map[T]int
	items []T
}

func NewOrderedSet[T comparable](elements ...T) *OrderedSet[T] {
	set := &OrderedSet[T]{index: make(map[T]int, len(elements))}
	for _, elem := range elements {
		set.Insert(elem)
	}
	return set
}

// Insert 在元素不存在时追加它。
// 返回元素的位置以及本次是否为新插入。
func (set *OrderedSet[T]) Insert(element T) (int, bool) {
	if set.index == nil {
		set.index = make(map[T]int)
	}
	if pos, ok := set.index[element]; ok {
		return pos, false
	}
	pos := len(set.items)
	set.index[element] = pos
	set.items = append(set.items, element)
	return pos, true
}

func (set *OrderedSet[T]) IndexOf(element T) (int, bool) {
	pos, ok := set.index[element]
	return pos, ok
}

func (set *OrderedSet[T]) Contain(element T) bool {
	_, ok := set.index[element]
	return ok
}

func (set *OrderedSet[T]) At(pos int) T {
	return set.items[pos]
}

// Values 返回按插入顺序排列的元素，调用方不得修改返回的切片。
func (set *OrderedSet[T]) Values() []T {
	return set.items
}

func (set *OrderedSet[T]) Len() int {
	if set == nil {
		return 0
	}
	return len(set.items)
}

func (set *OrderedSet[T]) Clear() {
	clear(set.index)
	set.items = set.items[:0]
}

type ConcurrentSet[T comparable] struct {
	inner sync.Map
}

func NewConcurrentSet[T comparable]() *ConcurrentSet[T] {
	return &ConcurrentSet[T]{}
}

// Insert 插入元素，元素此前不存在时返回 true。
func (set *ConcurrentSet[T]) Insert(element T) bool {
	_, exist := set.inner.LoadOrStore(element, struct{}{})
	return !exist
}

func (set *ConcurrentSet[T]) Contain(element T) bool {
	_, ok := set.inner.Load(element)
	return ok
}

// Collect 返回并发集合中的所有元素。
func (set *ConcurrentSet[T]) Collect() []T {
	elements := make([]T, 0)
	set.inner.Range(func(key, value any) bool {
		elements = append(elements, key.(T))
		return true
	})
	return elements
}
