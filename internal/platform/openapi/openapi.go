// Package openapi serves an OpenAPI 3.0 document generated from the routes
// registered on the echo instance.
package openapi

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Generator walks the echo route table once, on first request.
type Generator struct {
	e        *echo.Echo
	version  string
	isPublic func(path string) bool

	once sync.Once
	spec map[string]interface{}
}

// NewGenerator documents every route of e. isPublic reports routes that
// need no bearer token; it may be nil.
func NewGenerator(e *echo.Echo, version string, isPublic func(path string) bool) *Generator {
	if isPublic == nil {
		isPublic = func(string) bool { return false }
	}
	return &Generator{e: e, version: version, isPublic: isPublic}
}

// Spec returns the cached document.
func (g *Generator) Spec() map[string]interface{} {
	g.once.Do(func() { g.spec = g.GenerateSpec() })
	return g.spec
}

// GenerateSpec builds the document from the current route table.
func (g *Generator) GenerateSpec() map[string]interface{} {
	routes := g.e.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	paths := make(map[string]interface{})
	tagSet := make(map[string]bool)
	for _, r := range routes {
		if r.Method == echo.RouteNotFound || strings.HasSuffix(r.Path, "/*") {
			continue
		}
		path, params := convertPath(r.Path)
		tag := tagFor(r.Path)
		tagSet[tag] = true

		op := map[string]interface{}{
			"operationId": operationID(r),
			"tags":        []string{tag},
			"responses":   responsesFor(r.Method),
		}
		if len(params) > 0 {
			op["parameters"] = params
		}
		if g.isPublic(r.Path) {
			op["security"] = []map[string][]string{}
		}
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			op["requestBody"] = requestBodyFor(r.Path)
		}

		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}
		item[strings.ToLower(r.Method)] = op
	}

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	tagObjs := make([]map[string]string, len(tags))
	for i, t := range tags {
		tagObjs[i] = map[string]string{"name": t}
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "medrec API",
			"version":     g.version,
			"description": "Patient records with AI diagnosis reports",
		},
		"tags":     tagObjs,
		"paths":    paths,
		"security": []map[string][]string{{"bearerAuth": {}}},
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": map[string]interface{}{
				"Error": errorSchema(),
			},
		},
	}
}

// convertPath turns "/api/patients/:id" into "/api/patients/{id}" and lists
// the path parameters.
func convertPath(p string) (string, []map[string]interface{}) {
	var params []map[string]interface{}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			segs[i] = "{" + name + "}"
			params = append(params, map[string]interface{}{
				"name":     name,
				"in":       "path",
				"required": true,
				"schema":   map[string]string{"type": "string", "format": "uuid"},
			})
		}
	}
	return strings.Join(segs, "/"), params
}

// tagFor groups routes by their first segment after /api.
func tagFor(p string) string {
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(segs) > 1 && segs[0] == "api" {
		return segs[1]
	}
	return segs[0]
}

// operationID derives a stable id from the handler name, e.g.
// "patient.(*Handler).Create-fm" on /api/patients becomes "patients.Create".
func operationID(r *echo.Route) string {
	name := r.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if name == "" || strings.HasPrefix(name, "func") {
		name = strings.ToLower(r.Method)
	}
	return tagFor(r.Path) + "." + name + pathSuffix(r.Path)
}

// pathSuffix disambiguates handlers mounted on several paths.
func pathSuffix(p string) string {
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(segs) <= 2 {
		return ""
	}
	last := segs[len(segs)-1]
	if strings.HasPrefix(last, ":") {
		return ""
	}
	return "_" + last
}

func responsesFor(method string) map[string]interface{} {
	ok := "200"
	switch method {
	case http.MethodPost:
		ok = "201"
	}
	return map[string]interface{}{
		ok: map[string]interface{}{"description": "Success"},
		"default": map[string]interface{}{
			"description": "Error",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]string{"$ref": "#/components/schemas/Error"},
				},
			},
		},
	}
}

func requestBodyFor(p string) map[string]interface{} {
	if strings.HasSuffix(p, "/attachments") {
		return map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"multipart/form-data": map[string]interface{}{
					"schema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"file": map[string]string{"type": "string", "format": "binary"},
						},
						"required": []string{"file"},
					},
				},
			},
		}
	}
	return map[string]interface{}{
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"type": "object"},
			},
		},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code":    map[string]string{"type": "string"},
					"message": map[string]string{"type": "string"},
					"details": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"field": map[string]string{"type": "string"},
								"rule":  map[string]string{"type": "string"},
								"param": map[string]string{"type": "string"},
							},
						},
					},
				},
			},
			"requestId": map[string]string{"type": "string"},
		},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>medrec API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/api/openapi.json", dom_id: "#swagger-ui" });
  </script>
</body>
</html>`

// RegisterRoutes registers the document and a Swagger UI page.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.Spec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
