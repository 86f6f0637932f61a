package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/auth"
	"github.com/ikatan-anggota/backend/internal/members"
	"github.com/ikatan-anggota/backend/internal/middleware"
	"github.com/ikatan-anggota/backend/internal/registrations"
	"github.com/ikatan-anggota/backend/internal/trainings"
)

type handlers struct {
	auth          *auth.Handler
	trainings     *trainings.Handler
	members       *members.Handler
	registrations *registrations.Handler
	health        gin.HandlerFunc
}

func newRouter(h handlers, jwtService *auth.JWTService, corsOrigins string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(corsOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", h.auth.Login)
		authGroup.POST("/register", h.auth.Register)
	}

	p := router.Group("/pelatihan", middleware.JWT(jwtService))
	registrations.RegisterRoutes(p, h.registrations)
	members.RegisterRoutes(p, h.members)

	trainings.RegisterRoutes(p, router.Group("/admin/pelatihan", middleware.JWT(jwtService)), h.trainings)
	return router
}
