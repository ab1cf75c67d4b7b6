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
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	PrincipalHeader     = "X-Davstore-Principal"
	AnonymousPrincipal  = "anonymous"
	principalContextKey = "ctx.principal"
)

// PrincipalMiddleware takes the principal from the principal header, falling
// back to the basic auth user. Authentication itself happens in front of us.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		principal := strings.TrimSpace(gCtx.GetHeader(PrincipalHeader))
		if principal == "" {
			if user, _, ok := gCtx.Request.BasicAuth(); ok {
				principal = user
			}
		}
		if principal == "" {
			principal = AnonymousPrincipal
		}
		gCtx.Set(principalContextKey, principal)
		gCtx.Next()
	}
}

func GetPrincipal(ctx context.Context) string {
	if p, ok := ctx.Value(principalContextKey).(string); ok && p != "" {
		return p
	}
	return AnonymousPrincipal
}
