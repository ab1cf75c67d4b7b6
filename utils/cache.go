/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package utils

import (
	"github.com/bluele/gcache"
)

// Cache is a typed view over a bounded gcache LRU.
type Cache[K comparable, V any] struct {
	cache gcache.Cache
}

func NewCache[K comparable, V any](size int) *Cache[K, V] {
	return &Cache[K, V]{cache: gcache.New(size).LRU().Build()}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	val, err := c.cache.Get(key)
	if err != nil {
		return zero, false
	}
	typed, ok := val.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (c *Cache[K, V]) Set(key K, val V) {
	if err := c.cache.Set(key, val); err != nil {
		c.cache.Remove(key)
	}
}

func (c *Cache[K, V]) Remove(key K) {
	c.cache.Remove(key)
}

// RemoveIf drops every entry whose key matches fn.
func (c *Cache[K, V]) RemoveIf(fn func(key K) bool) {
	for _, k := range c.cache.Keys(false) {
		typed, ok := k.(K)
		if ok && fn(typed) {
			c.cache.Remove(k)
		}
	}
}

func (c *Cache[K, V]) Len() int {
	return c.cache.Len(false)
}

func (c *Cache[K, V]) Purge() {
	c.cache.Purge()
}
