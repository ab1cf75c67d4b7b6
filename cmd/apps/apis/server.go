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

package apis

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basenana/davstore/cmd/apps/apis/apitool"
	"github.com/basenana/davstore/cmd/apps/apis/davserver"
	"github.com/basenana/davstore/cmd/apps/apis/rest/v1"
	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/connector"
	"github.com/basenana/davstore/utils/logger"
)

const (
	defaultHttpTimeout = time.Minute * 30
)

type Server struct {
	engine    *gin.Engine
	apiConfig config.Api
	logger    *zap.SugaredLogger
}

func (s *Server) Run(stopCh chan struct{}) {
	addr := fmt.Sprintf("%s:%d", s.apiConfig.Host, s.apiConfig.Port)
	apitool.RunServer("api", addr, s.engine, defaultHttpTimeout, stopCh, s.logger)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Ping(gCtx *gin.Context) {
	gCtx.JSON(200, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		start := time.Now()
		path := gCtx.Request.URL.Path
		method := gCtx.Request.Method

		gCtx.Next()

		s.logger.Debugw("api request",
			"method", method,
			"path", path,
			"query", gCtx.Request.URL.Query().Encode(),
			"status", gCtx.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func NewApiServer(store *connector.Store, cfg config.Config) (*Server, error) {
	apiConfig := cfg.Api
	if apiConfig.Enable && apiConfig.Port == 0 {
		return nil, fmt.Errorf("http port not set")
	}
	if apiConfig.Host == "" {
		apiConfig.Host = "127.0.0.1"
	}

	s := &Server{
		engine:    gin.New(),
		apiConfig: apiConfig,
		logger:    logger.NewLogger("api"),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.logMiddleware())
	s.engine.Use(apitool.GinMetricMiddleware("api"))

	services, err := v1.NewServicesV1(s.engine, store)
	if err != nil {
		return nil, fmt.Errorf("init services failed: %w", err)
	}
	v1.RegisterRoutes(s.engine, services)

	s.engine.GET("/_ping", s.Ping)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if apiConfig.Pprof {
		pprof.Register(s.engine)
	}

	return s, nil
}

func NewDAVServer(cfg config.Config) (*davserver.Server, error) {
	if cfg.DAVServer == nil || !cfg.DAVServer.Enable {
		return nil, fmt.Errorf("dav server not enable")
	}
	return davserver.New(*cfg.DAVServer)
}
