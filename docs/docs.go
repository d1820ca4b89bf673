// Package docs registers the admin API's OpenAPI document with swag.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/clients": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List tracked clients (paginated)",
                "operationId": "listClients",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListClientsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/clients/{key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Get one tracked client",
                "operationId": "getClient",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true},
                    {"type": "string", "description": "Client identifier", "name": "key", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ClientSnapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Admin"],
                "summary": "Reset a tracked client",
                "operationId": "resetClient",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true},
                    {"type": "string", "description": "Client identifier", "name": "key", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/janitor": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Sweep idle clients now",
                "operationId": "runJanitor",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.JanitorResponse"}}
                }
            }
        },
        "/admin/policies": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List rate-limit policies",
                "operationId": "listPolicies",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListPoliciesResponse"}}
                }
            }
        },
        "/admin/audit": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List audit entries (paginated)",
                "operationId": "listAudit",
                "parameters": [
                    {"type": "string", "description": "Administrative role", "name": "X-User-Role", "in": "header", "required": true},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListAuditResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Audit persistence disabled", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.AuditEntry": {
            "type": "object",
            "properties": {
                "authenticated": {"type": "boolean"},
                "client_id": {"type": "string"},
                "id": {"type": "string"},
                "ip": {"type": "string"},
                "method": {"type": "string"},
                "path": {"type": "string"},
                "timestamp": {"type": "string"},
                "user_agent": {"type": "string"}
            }
        },
        "domain.ClientSnapshot": {
            "type": "object",
            "properties": {
                "blocked": {"type": "boolean"},
                "blocked_until": {"type": "string"},
                "key": {"type": "string", "example": "ip:203.0.113.7:1a2b3c4d"},
                "request_count": {"type": "integer", "example": 3},
                "window_start": {"type": "string"}
            }
        },
        "domain.RateLimitPolicy": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "example": "auth"},
                "max_requests": {"type": "integer", "example": 5},
                "window": {"type": "integer", "example": 900000000000}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "client not tracked"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.JanitorResponse": {
            "type": "object",
            "properties": {
                "evicted": {"type": "integer", "example": 12},
                "remaining": {"type": "integer", "example": 340}
            }
        },
        "handlers.ListAuditResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/domain.AuditEntry"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListClientsResponse": {
            "type": "object",
            "properties": {
                "clients": {"type": "array", "items": {"$ref": "#/definitions/domain.ClientSnapshot"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListPoliciesResponse": {
            "type": "object",
            "properties": {
                "policies": {"type": "array", "items": {"$ref": "#/definitions/domain.RateLimitPolicy"}}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "has_next": {"type": "boolean"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Request Gatekeeper Admin API",
	Description:      "Operator endpoints for the request gatekeeper: tracked clients, janitor, policies and audit log.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
