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

import "github.com/basenana/davstore/pkg/types"

type ResourceSelector struct {
	ID string `json:"id" form:"id" binding:"required"`
}

type GetResourceRequest struct {
	ResourceSelector
	WithBody bool `form:"body"`
}

type PutResourceRequest struct {
	ID          string                       `json:"id" binding:"required"`
	Collection  bool                         `json:"collection"`
	ContentType string                       `json:"content_type"`
	Properties  map[string]map[string]string `json:"properties"`
	Body        []byte                       `json:"body"`
	ETag        string                       `json:"etag"`
	// nil verifies
	VerifyETag *bool `json:"verify_etag"`
}

type ChangePropertiesRequest struct {
	ID     string                       `json:"id" binding:"required"`
	Set    map[string]map[string]string `json:"set"`
	Remove []types.PropertyKey          `json:"remove"`
}

type RelocateRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type LockRequest struct {
	ID             string `json:"id" binding:"required"`
	TimeoutSeconds int64  `json:"timeout_seconds" binding:"required,gt=0"`
	Outlive        bool   `json:"outlive"`
}

type UnlockRequest struct {
	ID    string `json:"id" binding:"required"`
	Token string `json:"token"`
}

type SearchRequest struct {
	Expression string `json:"expression" binding:"required"`
	Limit      int    `json:"limit" binding:"gte=0"`
}
