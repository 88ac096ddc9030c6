// Package docs holds the Swagger definition served at /swagger/index.html.
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
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Funnel metrics",
                "description": "Returns the hiring funnel snapshot: per-test taken/passed counts, pending reviews and requests.",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/recruiter.Metrics"}
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/webhook/candidate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Candidate bot update webhook",
                "description": "Accepts a Telegram update for the candidate bot and queues it for processing.",
                "parameters": [
                    {
                        "description": "Telegram update",
                        "name": "update",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "boolean"}}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/webhook/recruiter": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Recruiter bot update webhook",
                "description": "Accepts a Telegram update for the recruiter bot and queues it for processing.",
                "parameters": [
                    {
                        "description": "Telegram update",
                        "name": "update",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "boolean"}}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        }
    },
    "definitions": {
        "recruiter.Metrics": {
            "type": "object",
            "properties": {
                "total_candidates": {"type": "integer"},
                "eligible": {"type": "integer"},
                "tests": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/recruiter.TestMetrics"}
                },
                "pending_submissions": {"type": "integer"},
                "pending_interviews": {"type": "integer"},
                "unread_messages": {"type": "integer"}
            }
        },
        "recruiter.TestMetrics": {
            "type": "object",
            "properties": {
                "test": {"type": "string"},
                "label": {"type": "string"},
                "taken": {"type": "integer"},
                "passed": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "TalentFlow Hiring Funnel API",
	Description:      "Webhook ingestion and ops endpoints for the two-bot hiring funnel.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
