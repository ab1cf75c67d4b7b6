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

package v1

import (
	"time"

	"github.com/basenana/davstore/pkg/types"
)

type ResourceInfo struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Type        string                       `json:"type"`
	ContentType string                       `json:"content_type,omitempty"`
	ETag        string                       `json:"etag,omitempty"`
	Collection  bool                         `json:"collection"`
	Properties  map[string]map[string]string `json:"properties"`
	Body        []byte                       `json:"body,omitempty"`
}

type ChildInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type LockDetail struct {
	Locked    bool       `json:"locked"`
	Principal string     `json:"principal,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Owned     bool       `json:"owned"`
}

type LockToken struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type CanonicalID struct {
	ID string `json:"id"`
}

func toResourceInfo(res *types.Resource, withBody bool) *ResourceInfo {
	info := &ResourceInfo{
		ID:          string(res.ID),
		Name:        res.Name,
		Type:        string(res.Type),
		ContentType: res.ContentType,
		ETag:        res.ETag,
		Collection:  res.IsCollection(),
		Properties:  res.Properties.Without(types.ETagProperty).Grouped(),
	}
	if withBody && !info.Collection {
		info.Body = res.Body
	}
	return info
}

func toChildren(children []types.Child) []ChildInfo {
	result := make([]ChildInfo, 0, len(children))
	for _, c := range children {
		result = append(result, ChildInfo{Name: c.Name, ID: string(c.ID)})
	}
	return result
}

// the token stays private to its owner
func toLockDetail(info types.LockInfo) LockDetail {
	if info.Token == "" {
		return LockDetail{}
	}
	until := info.Until
	return LockDetail{Locked: true, Principal: info.Principal, Until: &until, Owned: info.Owned}
}
