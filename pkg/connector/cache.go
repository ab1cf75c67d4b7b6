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

package connector

import (
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
)

const (
	propertyCache  = "property"
	bodyCache      = "body"
	childrenCache  = "children"
	canonicalCache = "canonical"
)

// transactionCache holds what one transaction has read. Keys of the first
// three caches are canonical ids; the canonical cache is keyed by the input.
type transactionCache struct {
	ns         types.Namespace
	properties *utils.Cache[types.ResourceID, types.Properties]
	bodies     *utils.Cache[types.ResourceID, []byte]
	children   *utils.Cache[types.ResourceID, []types.Child]
	canonical  *utils.Cache[string, types.ResourceID]
}

func newTransactionCache(ns types.Namespace, size int) *transactionCache {
	return &transactionCache{
		ns:         ns,
		properties: utils.NewCache[types.ResourceID, types.Properties](size),
		bodies:     utils.NewCache[types.ResourceID, []byte](size),
		children:   utils.NewCache[types.ResourceID, []types.Child](size),
		canonical:  utils.NewCache[string, types.ResourceID](size),
	}
}

func (c *transactionCache) getResource(id types.ResourceID) (*types.Resource, bool) {
	props, ok := c.properties.Get(id)
	if !ok {
		cacheMissCounter.WithLabelValues(propertyCache).Inc()
		return nil, false
	}
	body, ok := c.bodies.Get(id)
	if !ok {
		cacheMissCounter.WithLabelValues(bodyCache).Inc()
		return nil, false
	}
	cacheHitCounter.WithLabelValues(propertyCache).Inc()
	return types.NewResource(id, c.ns.Name(id), props.Copy(), cloneBytes(body)), true
}

func (c *transactionCache) putResource(res *types.Resource) {
	props := res.Properties.Copy()
	if res.ETag != "" {
		props[types.ETagProperty] = res.ETag
	}
	c.properties.Set(res.ID, props)
	c.bodies.Set(res.ID, cloneBytes(res.Body))
}

func (c *transactionCache) getChildren(id types.ResourceID) ([]types.Child, bool) {
	children, ok := c.children.Get(id)
	if !ok {
		cacheMissCounter.WithLabelValues(childrenCache).Inc()
		return nil, false
	}
	cacheHitCounter.WithLabelValues(childrenCache).Inc()
	return append([]types.Child(nil), children...), true
}

func (c *transactionCache) putChildren(id types.ResourceID, children []types.Child) {
	c.children.Set(id, append([]types.Child(nil), children...))
}

func (c *transactionCache) getCanonical(input types.ResourceID) (types.ResourceID, bool) {
	id, ok := c.canonical.Get(string(input))
	if ok {
		cacheHitCounter.WithLabelValues(canonicalCache).Inc()
	} else {
		cacheMissCounter.WithLabelValues(canonicalCache).Inc()
	}
	return id, ok
}

func (c *transactionCache) putCanonical(input, id types.ResourceID) {
	c.canonical.Set(string(input), id)
}

// invalidate drops everything cached about id, and about its descendants
// when subtree is set.
func (c *transactionCache) invalidate(id types.ResourceID, subtree bool) {
	match := func(key types.ResourceID) bool {
		if subtree {
			return c.ns.Contains(id, key)
		}
		return key.Trimmed() == id.Trimmed()
	}
	c.properties.RemoveIf(match)
	c.bodies.RemoveIf(match)
	c.children.RemoveIf(match)
	c.canonical.RemoveIf(func(input string) bool {
		return match(types.ResourceID(input))
	})
}

// invalidateParent drops the cached listing of the collection holding id.
func (c *transactionCache) invalidateParent(id types.ResourceID) {
	parent, ok := c.ns.Parent(id)
	if !ok {
		return
	}
	c.children.Remove(parent.Trimmed())
	c.children.Remove(parent.AsCollection())
}

func (c *transactionCache) invalidateProperties(id types.ResourceID) {
	c.properties.Remove(id.Trimmed())
	c.properties.Remove(id.AsCollection())
}

func (c *transactionCache) purge() {
	c.properties.Purge()
	c.bodies.Purge()
	c.children.Purge()
	c.canonical.Purge()
}

func cloneBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}
