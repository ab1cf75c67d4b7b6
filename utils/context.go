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

package utils

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type apiTraceKey struct{}

// RequestIDHeader lets a caller pick the trace id of its request.
const RequestIDHeader = "X-Request-Id"

func NewApiContext(r *http.Request) context.Context {
	traceID := r.Header.Get(RequestIDHeader)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return context.WithValue(r.Context(), apiTraceKey{}, traceID)
}

func TraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(apiTraceKey{}).(string)
	return traceID
}

func ContextLog(ctx context.Context, log *zap.SugaredLogger) *zap.SugaredLogger {
	return log.With(zap.String("trace", TraceID(ctx)))
}
