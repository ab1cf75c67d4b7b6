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

import "sort"

const (
	DAVNamespace      = "DAV:"
	MetaNamespace     = "http://namespaces.zeit.de/CMS/meta"
	DocumentNamespace = "http://namespaces.zeit.de/CMS/document"
	TaggingNamespace  = "http://namespaces.zeit.de/CMS/tagging"
)

// DeleteProperty marks a key for removal in a property diff. It is never stored.
const DeleteProperty = "\x00deleted\x00"

const (
	PropertyTrue  = "yes"
	PropertyFalse = "no"
)

type PropertyKey struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

var (
	ResourceTypeProperty    = PropertyKey{Name: "type", Namespace: MetaNamespace}
	DAVResourceTypeProperty = PropertyKey{Name: "resourcetype", Namespace: DAVNamespace}
	ContentTypeProperty     = PropertyKey{Name: "getcontenttype", Namespace: DAVNamespace}
	ContentLengthProperty   = PropertyKey{Name: "getcontentlength", Namespace: DAVNamespace}
	LastModifiedProperty    = PropertyKey{Name: "getlastmodified", Namespace: DAVNamespace}
	ETagProperty            = PropertyKey{Name: "getetag", Namespace: DAVNamespace}
	UUIDProperty            = PropertyKey{Name: "uuid", Namespace: DocumentNamespace}
	KeywordsProperty        = PropertyKey{Name: "keywords", Namespace: TaggingNamespace}
)

type Properties map[PropertyKey]string

func (p Properties) Get(key PropertyKey) (string, bool) {
	v, ok := p[key]
	if !ok || v == DeleteProperty {
		return "", false
	}
	return v, true
}

func (p Properties) Value(key PropertyKey) string {
	v, _ := p.Get(key)
	return v
}

func (p Properties) Bool(key PropertyKey) bool {
	return p.Value(key) == PropertyTrue
}

func (p Properties) SetBool(key PropertyKey, val bool) {
	if val {
		p[key] = PropertyTrue
		return
	}
	p[key] = PropertyFalse
}

func (p Properties) Copy() Properties {
	result := make(Properties, len(p))
	for k, v := range p {
		result[k] = v
	}
	return result
}

// Merge applies diff over a copy of p. Tombstoned keys are removed.
func (p Properties) Merge(diff Properties) Properties {
	result := p.Copy()
	for k, v := range diff {
		if v == DeleteProperty {
			delete(result, k)
			continue
		}
		result[k] = v
	}
	return result
}

func (p Properties) Strip() Properties {
	result := make(Properties, len(p))
	for k, v := range p {
		if v == DeleteProperty {
			continue
		}
		result[k] = v
	}
	return result
}

func (p Properties) Without(keys ...PropertyKey) Properties {
	result := p.Copy()
	for _, k := range keys {
		delete(result, k)
	}
	return result
}

// Grouped partitions the properties by namespace, the layout every
// persisted form uses.
func (p Properties) Grouped() map[string]map[string]string {
	result := make(map[string]map[string]string)
	for k, v := range p {
		if v == DeleteProperty {
			continue
		}
		group, ok := result[k.Namespace]
		if !ok {
			group = make(map[string]string)
			result[k.Namespace] = group
		}
		group[k.Name] = v
	}
	return result
}

func (p Properties) Keys() []PropertyKey {
	keys := make([]PropertyKey, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Namespace != keys[j].Namespace {
			return keys[i].Namespace < keys[j].Namespace
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

func PropertiesFromGroups(groups map[string]map[string]string) Properties {
	result := make(Properties)
	for ns, group := range groups {
		for name, v := range group {
			result[PropertyKey{Name: name, Namespace: ns}] = v
		}
	}
	return result
}
