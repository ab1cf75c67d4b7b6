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

import "strings"

type ResourceType string

const (
	CollectionType ResourceType = "collection"
	ImageType      ResourceType = "image"
	UnknownType    ResourceType = "unknown"
)

const CollectionContentType = "httpd/unix-directory"

// InferResourceType resolves the type in a fixed order: the explicit type
// property, the DAV resourcetype, then the content type.
func InferResourceType(props Properties) ResourceType {
	if t, ok := props.Get(ResourceTypeProperty); ok && t != "" {
		return ResourceType(t)
	}
	if rt, ok := props.Get(DAVResourceTypeProperty); ok && strings.Contains(rt, "collection") {
		return CollectionType
	}
	if ct, ok := props.Get(ContentTypeProperty); ok && strings.HasPrefix(ct, "image/") {
		return ImageType
	}
	return UnknownType
}
