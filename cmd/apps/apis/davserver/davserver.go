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

package davserver

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/basenana/davstore/cmd/apps/apis/apitool"
	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/utils/logger"
)

// Server exposes a local directory over WebDAV. It is the remote the bridge
// backend talks to in development setups.
type Server struct {
	cfg     config.DAVServer
	handler http.Handler
	logger  *zap.SugaredLogger
}

func (w *Server) Run(stopCh chan struct{}) {
	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)
	w.logger.Infow("serving directory", "dir", w.cfg.Dir)
	apitool.RunServer("davserver", addr, w.handler, time.Hour, stopCh, w.logger)
}

func (w *Server) Handler() http.Handler {
	return w.handler
}

func New(cfg config.DAVServer) (*Server, error) {
	if cfg.Port == 0 {
		return nil, fmt.Errorf("http port not set")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("check dav server dir failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dav server dir %s is not a directory", cfg.Dir)
	}

	handler := &webdav.Handler{
		FileSystem: webdav.Dir(cfg.Dir),
		LockSystem: webdav.NewMemLS(),
		Logger:     logger.NewDAVRequestLogger().Handle,
	}
	return &Server{
		cfg:     cfg,
		handler: apitool.MetricMiddleware("davserver", handler),
		logger:  logger.NewLogger("davserver"),
	}, nil
}
