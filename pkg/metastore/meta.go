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

package metastore

import (
	"fmt"
	"time"

	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/backend"
	"github.com/basenana/davstore/pkg/types"
)

const (
	MemoryMeta   = config.MemoryMeta
	SqliteMeta   = config.SqliteMeta
	PostgresMeta = config.PostgresMeta
)

// NewMetaStorage opens the relational backend described by meta.
func NewMetaStorage(ns types.Namespace, meta config.Meta) (backend.Backend, error) {
	return New(ns, meta)
}

func New(ns types.Namespace, meta config.Meta) (*SQLStore, error) {
	switch meta.Type {
	case MemoryMeta:
		meta.Path = ":memory:"
		return newSqliteStore(ns, meta, true)
	case SqliteMeta:
		return newSqliteStore(ns, meta, false)
	case PostgresMeta:
		return newPostgresStore(ns, meta)
	default:
		return nil, fmt.Errorf("unknow meta store type: %s", meta.Type)
	}
}

func nowString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// withDefaults fills the DAV bookkeeping properties a stored item always carries.
func withDefaults(res *types.Resource, now time.Time) types.Properties {
	props := res.Properties.Without(types.ETagProperty)
	if _, ok := props[types.ContentTypeProperty]; !ok {
		switch {
		case res.IsCollection():
			props[types.ContentTypeProperty] = types.CollectionContentType
		case res.ContentType != "":
			props[types.ContentTypeProperty] = res.ContentType
		}
	}
	if _, ok := props[types.LastModifiedProperty]; !ok {
		props[types.LastModifiedProperty] = nowString(now)
	}
	if _, ok := props[types.ResourceTypeProperty]; !ok {
		switch {
		case res.IsCollection():
			props[types.ResourceTypeProperty] = string(types.CollectionType)
		case res.Type != "":
			props[types.ResourceTypeProperty] = string(res.Type)
		default:
			props[types.ResourceTypeProperty] = string(types.InferResourceType(props))
		}
	}
	return props
}
