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

import "time"

type Resource struct {
	ID          ResourceID   `json:"id"`
	Name        string       `json:"name"`
	Type        ResourceType `json:"type"`
	ContentType string       `json:"content_type"`
	Properties  Properties   `json:"-"`
	Body        []byte       `json:"-"`
	ETag        string       `json:"etag,omitempty"`
}

func NewResource(id ResourceID, name string, props Properties, body []byte) *Resource {
	props = props.Strip()
	res := &Resource{
		ID:         id,
		Name:       name,
		Type:       InferResourceType(props),
		Properties: props,
		Body:       body,
		ETag:       props.Value(ETagProperty),
	}
	if res.IsCollection() {
		res.ContentType = CollectionContentType
	} else {
		res.ContentType = props.Value(ContentTypeProperty)
	}
	return res
}

func (r *Resource) IsCollection() bool {
	return r.Type == CollectionType || r.ID.IsCollection()
}

type Child struct {
	Name string     `json:"name"`
	ID   ResourceID `json:"id"`
}

type LockAttr struct {
	Principal string
	Until     time.Time
	// Outlive keeps the lock when the transaction that took it aborts.
	Outlive bool
}

type LockInfo struct {
	Principal string    `json:"principal,omitempty"`
	Until     time.Time `json:"until,omitempty"`
	Token     string    `json:"token,omitempty"`
	Owned     bool      `json:"owned"`
}

func (l LockInfo) Active(now time.Time) bool {
	return l.Token != "" && now.Before(l.Until)
}

type SearchQuery struct {
	Expression string `json:"expression"`
	Limit      int    `json:"limit,omitempty"`
}
