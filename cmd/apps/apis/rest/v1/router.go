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
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(engine *gin.Engine, s *ServicesV1) {
	v1 := engine.Group("/api/v1")
	{
		resource := v1.Group("/resource")
		{
			resource.GET("", s.GetResource)
			resource.PUT("", s.PutResource)
			resource.DELETE("", s.DeleteResource)
			resource.PATCH("/properties", s.ChangeProperties)
			resource.POST("/move", s.MoveResource)
			resource.POST("/copy", s.CopyResource)
		}

		v1.GET("/children", s.ListChildren)
		v1.GET("/canonical", s.Canonicalize)

		lock := v1.Group("/lock")
		{
			lock.GET("", s.GetLock)
			lock.POST("", s.Lock)
			lock.POST("/release", s.Unlock)
		}

		v1.POST("/search", s.Search)
	}
}
