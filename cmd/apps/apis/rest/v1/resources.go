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
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/basenana/davstore/cmd/apps/apis/apitool"
	"github.com/basenana/davstore/pkg/connector"
	"github.com/basenana/davstore/pkg/types"
)

func (s *ServicesV1) GetResource(gCtx *gin.Context) {
	var req GetResourceRequest
	if err := gCtx.ShouldBindQuery(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var info *ResourceInfo
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		res, err := tx.Get(ctx, s.resourceID(req.ID))
		if err != nil {
			return err
		}
		info = toResourceInfo(res, req.WithBody)
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, info)
}

func (s *ServicesV1) PutResource(gCtx *gin.Context) {
	var req PutResourceRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	props := types.PropertiesFromGroups(req.Properties)
	if req.ContentType != "" {
		props[types.ContentTypeProperty] = req.ContentType
	}
	if req.Collection {
		props[types.ResourceTypeProperty] = string(types.CollectionType)
	}
	res := types.NewResource(s.resourceID(req.ID), "", props, req.Body)
	res.ETag = req.ETag
	verify := req.VerifyETag == nil || *req.VerifyETag

	var info *ResourceInfo
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		if err := tx.Add(ctx, res, verify); err != nil {
			return err
		}
		stored, err := tx.Get(ctx, res.ID)
		if err != nil {
			return err
		}
		info = toResourceInfo(stored, false)
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, info)
}

func (s *ServicesV1) ChangeProperties(gCtx *gin.Context) {
	var req ChangePropertiesRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}
	diff := types.PropertiesFromGroups(req.Set)
	for _, key := range req.Remove {
		diff[key] = types.DeleteProperty
	}

	var info *ResourceInfo
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		id := s.resourceID(req.ID)
		if err := tx.ChangeProperties(ctx, id, diff); err != nil {
			return err
		}
		res, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		info = toResourceInfo(res, false)
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, info)
}

func (s *ServicesV1) DeleteResource(gCtx *gin.Context) {
	var req ResourceSelector
	if err := gCtx.ShouldBindQuery(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		return tx.Delete(ctx, s.resourceID(req.ID))
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, CanonicalID{ID: req.ID})
}

func (s *ServicesV1) MoveResource(gCtx *gin.Context) {
	s.relocate(gCtx, func(ctx context.Context, tx *connector.Transaction, from, to types.ResourceID) error {
		return tx.Move(ctx, from, to)
	})
}

func (s *ServicesV1) CopyResource(gCtx *gin.Context) {
	s.relocate(gCtx, func(ctx context.Context, tx *connector.Transaction, from, to types.ResourceID) error {
		return tx.Copy(ctx, from, to)
	})
}

func (s *ServicesV1) relocate(gCtx *gin.Context, op func(ctx context.Context, tx *connector.Transaction, from, to types.ResourceID) error) {
	var req RelocateRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var target types.ResourceID
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		if err := op(ctx, tx, s.resourceID(req.From), s.resourceID(req.To)); err != nil {
			return err
		}
		var err error
		target, err = tx.Canonicalize(ctx, s.resourceID(req.To))
		return err
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, CanonicalID{ID: string(target)})
}

func (s *ServicesV1) ListChildren(gCtx *gin.Context) {
	var req ResourceSelector
	if err := gCtx.ShouldBindQuery(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var children []ChildInfo
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		result, err := tx.ListCollection(ctx, s.resourceID(req.ID))
		if err != nil {
			return err
		}
		children = toChildren(result)
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, children)
}

func (s *ServicesV1) Canonicalize(gCtx *gin.Context) {
	var req ResourceSelector
	if err := gCtx.ShouldBindQuery(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var canonical types.ResourceID
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) (err error) {
		canonical, err = tx.Canonicalize(ctx, s.resourceID(req.ID))
		return
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, CanonicalID{ID: string(canonical)})
}

func (s *ServicesV1) GetLock(gCtx *gin.Context) {
	var req ResourceSelector
	if err := gCtx.ShouldBindQuery(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var detail LockDetail
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		info, err := tx.Locked(ctx, s.resourceID(req.ID))
		if err != nil {
			return err
		}
		detail = toLockDetail(info)
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, detail)
}

func (s *ServicesV1) Lock(gCtx *gin.Context) {
	var req LockRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	var result LockToken
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		id, err := tx.Canonicalize(ctx, s.resourceID(req.ID))
		if err != nil {
			return err
		}
		token, err := tx.Lock(ctx, id, types.LockAttr{
			Until:   time.Now().Add(time.Duration(req.TimeoutSeconds) * time.Second),
			Outlive: req.Outlive,
		})
		if err != nil {
			return err
		}
		result = LockToken{ID: string(id), Token: token}
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, result)
}

func (s *ServicesV1) Unlock(gCtx *gin.Context) {
	var req UnlockRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		return tx.Unlock(ctx, s.resourceID(req.ID), req.Token)
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, CanonicalID{ID: req.ID})
}

func (s *ServicesV1) Search(gCtx *gin.Context) {
	var req SearchRequest
	if err := gCtx.ShouldBindJSON(&req); err != nil {
		apitool.HttpStatusResponse(gCtx, http.StatusBadRequest, err)
		return
	}

	result := make([]*ResourceInfo, 0)
	err := s.withTransaction(gCtx, func(ctx context.Context, tx *connector.Transaction) error {
		found, err := tx.Search(ctx, types.SearchQuery{Expression: req.Expression, Limit: req.Limit})
		if err != nil {
			return err
		}
		for _, res := range found {
			result = append(result, toResourceInfo(res, false))
		}
		return nil
	})
	if err != nil {
		apitool.ErrorResponse(gCtx, err)
		return
	}
	apitool.JsonResponse(gCtx, http.StatusOK, result)
}
