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
	"runtime/trace"
)

// TraceTask opens a runtime/trace task tagged with the request trace id, if any.
func TraceTask(ctx context.Context, taskName string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, taskName)
	if traceID := TraceID(ctx); traceID != "" {
		trace.Log(ctx, "trace", traceID)
	}
	return ctx, task.End
}

// TraceRegion marks fn as a region of the task carried by ctx.
func TraceRegion(ctx context.Context, regionName string, fn func() error) error {
	var err error
	trace.WithRegion(ctx, regionName, func() { err = fn() })
	return err
}
