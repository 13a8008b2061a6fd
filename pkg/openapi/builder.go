package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Operation is one HTTP operation surfaced in the document.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Params      []Param
	RequestBody any
	Responses   map[string]string // status -> description
	// Admin marks operations behind the bearer guard.
	Admin bool
}

// Param is a query parameter.
type Param struct {
	Name     string
	Required bool
}

type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(ops ...Operation) {
	for _, op := range ops {
		op.Method = strings.ToLower(op.Method)
		r.Ops = append(r.Ops, op)
	}
}

// Build produces an OpenAPI 3.1 document for the registered operations.
// Schemas are inline.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		responses := map[string]any{}
		for status, desc := range op.Responses {
			responses[status] = map[string]any{"description": desc}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"responses": responses,
		}
		if len(op.Tags) > 0 {
			m["tags"] = op.Tags
		}
		if len(op.Params) > 0 {
			params := make([]map[string]any, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, map[string]any{
					"name": p.Name, "in": "query", "required": p.Required,
					"schema": map[string]any{"type": "string"},
				})
			}
			m["parameters"] = params
		}
		if op.RequestBody != nil {
			m["requestBody"] = map[string]any{
				"required": true,
				"content":  map[string]any{"application/json": map[string]any{"schema": op.RequestBody}},
			}
		}
		if op.Admin {
			m["security"] = []map[string]any{{"adminBearer": []string{}}}
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"adminBearer": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
}

// Paths lists registered paths, sorted.
func (r *Registry) Paths() []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range r.Ops {
		if !seen[op.Path] {
			seen[op.Path] = true
			out = append(out, op.Path)
		}
	}
	sort.Strings(out)
	return out
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
