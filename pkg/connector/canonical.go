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
	"context"
	"runtime/trace"

	"github.com/basenana/davstore/pkg/types"
)

// Canonicalize normalizes id: collections end with "/", everything else does
// not. The directory check hits the backend once per input string and
// transaction.
func (t *Transaction) Canonicalize(ctx context.Context, id types.ResourceID) (types.ResourceID, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	ns := t.store.ns
	if err := ns.Validate(id); err != nil {
		return "", err
	}
	if ns.IsRoot(id) {
		return ns.Root(), nil
	}
	if cached, ok := t.cache.getCanonical(id); ok {
		return cached, nil
	}

	defer trace.StartRegion(ctx, "connector.Canonicalize").End()
	result := id.Trimmed()
	if t.store.canonicalizeDirs {
		isDir, err := t.session.IsCollection(ctx, result)
		if err != nil {
			return "", err
		}
		if isDir {
			result = result.AsCollection()
		}
	}
	t.cache.putCanonical(id, result)
	return result, nil
}

// canonicalFor shapes the id of a resource that may not exist yet.
func (t *Transaction) canonicalFor(id types.ResourceID, collection bool) (types.ResourceID, error) {
	ns := t.store.ns
	if err := ns.Validate(id); err != nil {
		return "", err
	}
	if ns.IsRoot(id) {
		return ns.Root(), nil
	}
	if collection && t.store.canonicalizeDirs {
		return id.AsCollection(), nil
	}
	return id.Trimmed(), nil
}

// ClearCache forgets every canonical id resolved so far.
func (t *Transaction) ClearCache() {
	t.cache.canonical.Purge()
}
