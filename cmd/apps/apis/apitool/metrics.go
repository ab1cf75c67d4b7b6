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

package apitool

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"
	"github.com/slok/go-http-metrics/middleware/std"
)

var httpRecorder = metrics.NewRecorder(metrics.Config{
	Prefix:   "davstore",
	Registry: prometheus.DefaultRegisterer,
})

func init() {
	prometheus.MustRegister(collectors.NewBuildInfoCollector())
}

func MetricMiddleware(handlerID string, handler http.Handler) http.Handler {
	mdlw := middleware.New(middleware.Config{Recorder: httpRecorder, Service: handlerID})
	return std.Handler(handlerID, mdlw, handler)
}

// GinMetricMiddleware records per route; an empty handlerID uses the matched path.
func GinMetricMiddleware(service string) gin.HandlerFunc {
	mdlw := middleware.New(middleware.Config{Recorder: httpRecorder, Service: service})
	return ginmiddleware.Handler("", mdlw)
}
