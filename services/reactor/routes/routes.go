// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/AleutianReact/services/reactor/handlers"
	"github.com/AleutianAI/AleutianReact/services/reactor/middleware"
	"github.com/AleutianAI/AleutianReact/services/reactor/observability"
	"github.com/AleutianAI/AleutianReact/services/reactor/quota"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, gen handlers.Generator, gate quota.Gate,
	recordStore handlers.RecordStore, metrics *observability.Metrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware())
	{
		v1.POST("/reactions", handlers.HandleGenerate(gen, gate, recordStore, metrics))
		v1.GET("/reactions/history", handlers.HandleHistory(recordStore))
	}
}
