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

package types

import (
	"fmt"
	"strings"
)

const DefaultIDPrefix = "http://xml.zeit.de/"

// ResourceID addresses a resource. Collection ids end with "/".
type ResourceID string

func (id ResourceID) String() string {
	return string(id)
}

func (id ResourceID) IsCollection() bool {
	return strings.HasSuffix(string(id), "/")
}

func (id ResourceID) Trimmed() ResourceID {
	return ResourceID(strings.TrimRight(string(id), "/"))
}

func (id ResourceID) AsCollection() ResourceID {
	if id.IsCollection() {
		return id
	}
	return id + "/"
}

// Namespace maps ids under a fixed prefix to store paths like "/a/b".
// The prefix itself is the root collection with path "/".
type Namespace struct {
	Prefix string
}

func NewNamespace(prefix string) Namespace {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Namespace{Prefix: prefix}
}

func (n Namespace) Root() ResourceID {
	return ResourceID(n.Prefix)
}

func (n Namespace) IsRoot(id ResourceID) bool {
	return id.AsCollection() == n.Root() || string(id) == strings.TrimSuffix(n.Prefix, "/")
}

// Validate rejects ids outside the namespace and ids with relative segments.
func (n Namespace) Validate(id ResourceID) error {
	if n.IsRoot(id) {
		return nil
	}
	if !strings.HasPrefix(string(id), n.Prefix) {
		return fmt.Errorf("%w: id %q is outside %s", ErrBadRequest, id, n.Prefix)
	}
	for _, seg := range strings.Split(strings.Trim(strings.TrimPrefix(string(id), n.Prefix), "/"), "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: id %q has an invalid segment", ErrBadRequest, id)
		}
	}
	return nil
}

func (n Namespace) Path(id ResourceID) (string, error) {
	if err := n.Validate(id); err != nil {
		return "", err
	}
	if n.IsRoot(id) {
		return "/", nil
	}
	return "/" + strings.Trim(strings.TrimPrefix(string(id), n.Prefix), "/"), nil
}

func (n Namespace) ID(path string, collection bool) ResourceID {
	path = strings.Trim(path, "/")
	if path == "" {
		return n.Root()
	}
	id := ResourceID(n.Prefix + path)
	if collection {
		return id.AsCollection()
	}
	return id
}

// Parent returns the collection holding id; the root has no parent.
func (n Namespace) Parent(id ResourceID) (ResourceID, bool) {
	if n.IsRoot(id) {
		return "", false
	}
	rest := strings.Trim(strings.TrimPrefix(string(id), n.Prefix), "/")
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return n.Root(), true
	}
	return ResourceID(n.Prefix + rest[:idx+1]), true
}

func (n Namespace) Name(id ResourceID) string {
	if n.IsRoot(id) {
		return ""
	}
	rest := strings.Trim(strings.TrimPrefix(string(id), n.Prefix), "/")
	return rest[strings.LastIndex(rest, "/")+1:]
}

// Contains reports whether id is ancestor itself or lies below it.
func (n Namespace) Contains(ancestor, id ResourceID) bool {
	if n.IsRoot(ancestor) {
		return true
	}
	a := ancestor.Trimmed()
	return id.Trimmed() == a || strings.HasPrefix(string(id), string(a)+"/")
}

// Rebase moves id from below oldBase to below newBase.
func (n Namespace) Rebase(id, oldBase, newBase ResourceID) ResourceID {
	rest := strings.TrimPrefix(string(id), string(oldBase.Trimmed()))
	return ResourceID(string(newBase.Trimmed()) + rest)
}
