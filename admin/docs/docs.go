// Package docs holds the swag-generated Swagger spec for the admin API.
// Regenerate with: swag init --dir ../ --output . --parseDependency
package docs

import "github.com/swaggo/swag"

// SwaggerInfo holds exported Swagger spec metadata, filled in at router
// setup (admin.Server sets BasePath before registering the swagger route).
var SwaggerInfo = &swag.Spec{
	Version:     "1.0",
	Host:        "",
	BasePath:    "/api/v1",
	Schemes:     []string{},
	Title:       "localstore admin API",
	Description: "Read-only diagnostics for a LocalStore coordinator: queue depth, reference counts, and per-target matched keys.",
}

const docTemplate = `{
	"swagger": "2.0",
	"info": {
		"title": "{{.Title}}",
		"description": "{{.Description}}",
		"version": "{{.Version}}"
	},
	"basePath": "{{.BasePath}}",
	"paths": {}
}`

type s struct{}

func (s *s) ReadDoc() string {
	return SwaggerInfo.ReadDoc()
}

func init() {
	SwaggerInfo.SwaggerTemplate = docTemplate
	swag.Register(swag.Name, &s{})
}
