// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g module.go -d contexts/ledger-anchoring/record-anchoring-service -o internal/platform/httpserver/docs
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
        "/v1/records": {
            "get": {
                "description": "Lists records oldest first, optionally filtered by anchoring status.",
                "produces": ["application/json"],
                "tags": ["record-anchoring"],
                "summary": "List records",
                "parameters": [
                    {"type": "string", "description": "Request correlation id", "name": "X-Request-Id", "in": "header"},
                    {"type": "string", "description": "pending, pending_submission, submitted, confirmed or failed", "name": "status", "in": "query"},
                    {"type": "integer", "description": "Page size (max 500)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.ListRecordsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Persists a JSON record as pending and returns immediately; ledger anchoring happens in the background.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["record-anchoring"],
                "summary": "Create a record",
                "parameters": [
                    {"type": "string", "description": "Request correlation id", "name": "X-Request-Id", "in": "header"},
                    {"description": "Record payload", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.CreateRecordRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.CreateRecordResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/records/{record_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["record-anchoring"],
                "summary": "Get record anchoring status",
                "parameters": [
                    {"type": "string", "description": "Request correlation id", "name": "X-Request-Id", "in": "header"},
                    {"type": "string", "description": "Record id", "name": "record_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.GetRecordResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.CreateRecordRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "object"}
            }
        },
        "httptransport.CreateRecordResponse": {
            "type": "object",
            "properties": {
                "item": {"$ref": "#/definitions/httptransport.RecordDTO"}
            }
        },
        "httptransport.GetRecordResponse": {
            "type": "object",
            "properties": {
                "item": {"$ref": "#/definitions/httptransport.RecordDTO"}
            }
        },
        "httptransport.ListRecordsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/httptransport.RecordDTO"}}
            }
        },
        "httptransport.RecordDTO": {
            "type": "object",
            "properties": {
                "anchoring_status": {"type": "string"},
                "content": {"type": "object"},
                "created_at": {"type": "string"},
                "digest": {"type": "string"},
                "last_error": {"type": "string"},
                "ledger_signature": {"type": "string"},
                "next_eligible_at": {"type": "string"},
                "record_id": {"type": "string"},
                "retry_count": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "httptransport.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Notary Record Anchoring API",
	Description:      "Stores JSON records and anchors their digests on an external ledger.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
