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
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/basenana/davstore/cmd/apps/apis/apitool"
	"github.com/basenana/davstore/pkg/connector"
	"github.com/basenana/davstore/pkg/types"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
	"github.com/basenana/davstore/utils/metrics"
)

type ServicesV1 struct {
	store  *connector.Store
	logger *zap.SugaredLogger
}

func NewServicesV1(engine *gin.Engine, store *connector.Store) (*ServicesV1, error) {
	s := &ServicesV1{
		store:  store,
		logger: logger.NewLogger("rest"),
	}

	engine.Use(apitool.PrincipalMiddleware())

	return s, nil
}

// resourceID accepts a full id or a path below the configured prefix.
func (s *ServicesV1) resourceID(raw string) types.ResourceID {
	if strings.Contains(raw, "://") {
		return types.ResourceID(raw)
	}
	return types.ResourceID(s.store.Namespace().Prefix + strings.TrimPrefix(raw, "/"))
}

// withTransaction runs fn in a transaction of the calling principal.
func (s *ServicesV1) withTransaction(gCtx *gin.Context, fn func(ctx context.Context, tx *connector.Transaction) error) error {
	principal := apitool.GetPrincipal(gCtx)
	ctx, endTask := utils.TraceTask(utils.NewApiContext(gCtx.Request), "rest"+gCtx.FullPath())
	defer endTask()

	err := s.store.Do(ctx, principal, func(tx *connector.Transaction) error {
		return utils.TraceRegion(ctx, "handler", func() error { return fn(ctx, tx) })
	})
	if err != nil {
		status, _ := apitool.Error2ApiErrorCode(err)
		if status >= 500 {
			utils.ContextLog(ctx, s.logger).Errorw("request failed", "path", gCtx.Request.URL.Path, "principal", principal, "err", err)
			metrics.CaptureError(err)
		}
	}
	return err
}
