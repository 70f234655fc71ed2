package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ariebrainware/lis-backend/admission"
	"github.com/ariebrainware/lis-backend/config"
	"github.com/ariebrainware/lis-backend/endpoint"
	"github.com/ariebrainware/lis-backend/metrics"
	"github.com/ariebrainware/lis-backend/middleware"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// newRouter wires middleware, the resource routes (at the root and under /api)
// and the operational endpoints.
func newRouter(cfg *config.Config, db *gorm.DB, gen *admission.Generator) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.CORSMiddleware(),
		middleware.DatabaseMiddleware(db),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pingDB(ctx, db); err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Database unreachable", Err: err})
			return
		}
		util.CallSuccessOK(c, util.APISuccessParams{
			Msg:  "OK",
			Data: map[string]interface{}{"sequencer": gen.SequencerName()},
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	opts := endpoint.RouteOptions{
		Generator:   gen,
		MaxAttempts: cfg.AdmissionMaxAttempts,
		WriteMiddleware: []gin.HandlerFunc{
			middleware.RateLimiter(middleware.RateLimitConfig{
				Limit:  cfg.RateLimit,
				Window: cfg.RateLimitWindow,
			}),
		},
	}

	root := router.Group("/", middleware.ValidateAPIToken(cfg.APIToken))
	endpoint.RegisterRoutes(root, opts)
	endpoint.RegisterRoutes(router.Group("/api", middleware.ValidateAPIToken(cfg.APIToken)), opts)

	return router
}
