// Package apidoc registers the OpenAPI description of the HTTP API with swag,
// which gin-swagger serves under /swagger/.
package apidoc

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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service status, loader progress and dataset version",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Dataset failed to load", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/loading": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Staged loader progress",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Progress"}}
                }
            }
        },
        "/api/filters/options": {
            "get": {
                "produces": ["application/json"],
                "tags": ["filters"],
                "summary": "Distinct values for every filter; schools limited to the municipality",
                "parameters": [{"$ref": "#/parameters/municipality"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Options"}},
                    "400": {"description": "Invalid value", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/marks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregation"],
                "summary": "Participant-weighted mark distribution",
                "parameters": [
                    {"$ref": "#/parameters/year"},
                    {"$ref": "#/parameters/grade"},
                    {"$ref": "#/parameters/subject"},
                    {"$ref": "#/parameters/municipality"},
                    {"$ref": "#/parameters/school"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/MarkShare"}}},
                    "400": {"description": "Invalid filter value", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/scores": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregation"],
                "summary": "Participant-weighted primary score distribution, dense from 0 to the maximum score",
                "parameters": [
                    {"$ref": "#/parameters/year"},
                    {"$ref": "#/parameters/grade"},
                    {"$ref": "#/parameters/subject"},
                    {"$ref": "#/parameters/municipality"},
                    {"$ref": "#/parameters/school"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/ScoreShare"}}},
                    "400": {"description": "Invalid filter value", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/bias": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregation"],
                "summary": "Bias indicator records matching the filters",
                "parameters": [
                    {"$ref": "#/parameters/year"},
                    {"$ref": "#/parameters/grade"},
                    {"$ref": "#/parameters/subject"},
                    {"$ref": "#/parameters/municipality"},
                    {"$ref": "#/parameters/school"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/BiasRecord"}}},
                    "400": {"description": "Invalid filter value", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/dashboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregation"],
                "summary": "Marks, scores and bias for one filter state",
                "parameters": [
                    {"$ref": "#/parameters/year"},
                    {"$ref": "#/parameters/grade"},
                    {"$ref": "#/parameters/subject"},
                    {"$ref": "#/parameters/municipality"},
                    {"$ref": "#/parameters/school"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Dashboard"}},
                    "400": {"description": "Invalid filter value", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/validation": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregation"],
                "summary": "Data-quality issues in the stored collections",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ValidationReport"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/sessions": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Create a filter session with the default state",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Session"}}
                }
            }
        },
        "/api/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Read a filter session",
                "parameters": [{"$ref": "#/parameters/sessionID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}},
                    "404": {"description": "Unknown or expired session", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "delete": {
                "tags": ["sessions"],
                "summary": "Delete a filter session",
                "parameters": [{"$ref": "#/parameters/sessionID"}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/sessions/{id}/filters": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Merge a partial filter update; a municipality change resets the school",
                "parameters": [
                    {"$ref": "#/parameters/sessionID"},
                    {"name": "patch", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FilterPatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}},
                    "400": {"description": "Invalid filter value", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "Unknown or expired session", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/sessions/{id}/dashboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Dashboard for the session's filter state",
                "parameters": [{"$ref": "#/parameters/sessionID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Dashboard"}},
                    "404": {"description": "Unknown or expired session", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Dataset still loading", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "In-process counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/metrics/prometheus": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["system"],
                "summary": "Prometheus exposition",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "parameters": {
        "year": {"name": "year", "in": "query", "type": "string", "description": "Year; omitted, \"Все\" or \"all\" means any"},
        "grade": {"name": "grade", "in": "query", "type": "string", "description": "Grade; omitted, \"Все\" or \"all\" means any"},
        "subject": {"name": "subject", "in": "query", "type": "string", "description": "Subject; omitted, \"Все\" or \"all\" means any"},
        "municipality": {"name": "municipality", "in": "query", "type": "string", "description": "Municipality; omitted, \"Все\" or \"all\" means any"},
        "school": {"name": "school", "in": "query", "type": "string", "description": "School; omitted, \"Все\" or \"all\" means any"},
        "sessionID": {"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"}
    },
    "definitions": {
        "MarkShare": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "enum": ["2", "3", "4", "5"]},
                "value": {"type": "number"},
                "color": {"type": "string"}
            }
        },
        "ScoreShare": {
            "type": "object",
            "properties": {
                "score": {"type": "integer"},
                "percentage": {"type": "number"}
            }
        },
        "BiasRecord": {
            "type": "object",
            "properties": {
                "year": {"type": "string"},
                "grade": {"type": "string"},
                "subject": {"type": "string"},
                "municipality": {"type": "string"},
                "school": {"type": "string"},
                "indicators": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "FilterState": {
            "type": "object",
            "properties": {
                "year": {"type": "string"},
                "grade": {"type": "string"},
                "subject": {"type": "string"},
                "municipality": {"type": "string"},
                "school": {"type": "string"}
            }
        },
        "FilterPatch": {
            "type": "object",
            "properties": {
                "year": {"type": "string"},
                "grade": {"type": "string"},
                "subject": {"type": "string"},
                "municipality": {"type": "string"},
                "school": {"type": "string"}
            }
        },
        "Dashboard": {
            "type": "object",
            "properties": {
                "filters": {"$ref": "#/definitions/FilterState"},
                "marks": {"type": "array", "items": {"$ref": "#/definitions/MarkShare"}},
                "scores": {"type": "array", "items": {"$ref": "#/definitions/ScoreShare"}},
                "bias": {"type": "array", "items": {"$ref": "#/definitions/BiasRecord"}},
                "records": {"type": "integer"}
            }
        },
        "Options": {
            "type": "object",
            "properties": {
                "years": {"type": "array", "items": {"type": "string"}},
                "grades": {"type": "array", "items": {"type": "string"}},
                "subjects": {"type": "array", "items": {"type": "string"}},
                "municipalities": {"type": "array", "items": {"type": "string"}},
                "schools": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Issue": {
            "type": "object",
            "properties": {
                "collection": {"type": "string"},
                "key": {"$ref": "#/definitions/FilterState"},
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "ValidationReport": {
            "type": "object",
            "properties": {
                "issues": {"type": "array", "items": {"$ref": "#/definitions/Issue"}},
                "count": {"type": "integer"}
            }
        },
        "Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "filters": {"$ref": "#/definitions/FilterState"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "Progress": {
            "type": "object",
            "properties": {
                "stage": {"type": "integer"},
                "message": {"type": "string"},
                "percent": {"type": "number"},
                "done": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "category": {"type": "string", "enum": ["validation", "not_found", "unavailable", "timeout", "rate_limit", "internal", "configuration"]},
                "http_status": {"type": "integer"},
                "timestamp": {"type": "string", "format": "date-time"},
                "request_id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "VPR Analytics API",
	Description:      "Participant-weighted aggregation of VPR assessment results, filtered by year, grade, subject, municipality and school.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
