package endpoint

import (
	"github.com/ariebrainware/lis-backend/admission"
	"github.com/gin-gonic/gin"
)

// RouteOptions carries what the resource routes need beyond the DB in context.
type RouteOptions struct {
	Generator   *admission.Generator
	MaxAttempts int
	// WriteMiddleware runs before every POST, PUT, PATCH and DELETE handler.
	WriteMiddleware []gin.HandlerFunc
}

func (o RouteOptions) write(h gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(o.WriteMiddleware)+1)
	chain = append(chain, o.WriteMiddleware...)
	return append(chain, h)
}

// collection registers list and create with and without the trailing slash.
func collection(g *gin.RouterGroup, list gin.HandlerFunc, create []gin.HandlerFunc) {
	for _, path := range []string{"", "/"} {
		g.GET(path, list)
		g.POST(path, create...)
	}
}

func member(g *gin.RouterGroup, o RouteOptions, get, update, remove gin.HandlerFunc) {
	g.GET("/:id", get)
	g.PUT("/:id", o.write(update)...)
	g.PATCH("/:id", o.write(update)...)
	g.DELETE("/:id", o.write(remove)...)
}

// RegisterRoutes mounts the patient, specialist and result resources on r.
func RegisterRoutes(r gin.IRouter, o RouteOptions) {
	patients := r.Group("/patients")
	patients.GET("/next-code", NextAdmissionCode(o.Generator))
	collection(patients, ListPatients, o.write(CreatePatient(o.Generator, o.MaxAttempts)))
	member(patients, o, GetPatient, UpdatePatient, DeletePatient)

	specialists := r.Group("/specialists")
	collection(specialists, ListSpecialists, o.write(CreateSpecialist))
	member(specialists, o, GetSpecialist, UpdateSpecialist, DeleteSpecialist)

	results := r.Group("/results")
	collection(results, ListResults, o.write(CreateResult))
	member(results, o, GetResult, UpdateResult, DeleteResult)
}
