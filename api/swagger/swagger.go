package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Portal API",
        "description": "Provisions skill ladder repositories and drives graded assignments on the hosting service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Learner sign-in"},
        {"name": "Progression", "description": "Ladder stage resolution and provisioning"},
        {"name": "Grades", "description": "Deliverable grading"},
        {"name": "Teams", "description": "Team formation"},
        {"name": "Assignments", "description": "Per-student assignment repositories"},
        {"name": "Exports", "description": "Roster exports"},
        {"name": "Webhooks", "description": "Hosting service events"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/githubWebhook": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Hosting service webhook",
                "parameters": [
                    {"name": "X-Hub-Signature-256", "in": "header", "required": true, "type": "string"},
                    {"name": "X-GitHub-Event", "in": "header", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid signature", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a hosting service token for a portal token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignInRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing learner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/{id}/status": {
            "get": {
                "tags": ["Progression"],
                "summary": "Resolve a learner's ladder stages",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/{id}/grades/{deliverableId}": {
            "get": {
                "tags": ["Grades"],
                "summary": "Get a grade",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "deliverableId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/provision": {
            "post": {
                "tags": ["Progression"],
                "summary": "Provision a ladder repository",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid team", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Stage not reachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teams": {
            "post": {
                "tags": ["Teams"],
                "summary": "Form a team the caller joins",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FormTeamRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing team", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Formed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Caller not a member", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Formed concurrently; retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid team", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/teams": {
            "post": {
                "tags": ["Teams"],
                "summary": "Form a team for any learners",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FormTeamRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing team", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Formed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Formed concurrently; retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid team", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/repositories/{id}/pull-request": {
            "post": {
                "tags": ["Progression"],
                "summary": "Record a milestone pull request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades": {
            "post": {
                "tags": ["Grades"],
                "summary": "Record a grade",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid grade", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/roster": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the ladder roster",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/jobs/{jobId}": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Get a queued batch",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "jobId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/initialize": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Create assignment repositories",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/publish": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Give students write access",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/close": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Revoke student write access",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/status": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Aggregate assignment status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/assignments/{id}/roster": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export an assignment roster",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/assignments/{id}/repositories": {
            "delete": {
                "tags": ["Assignments"],
                "summary": "Delete every assignment repository",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/repositories/{repoId}": {
            "delete": {
                "tags": ["Assignments"],
                "summary": "Delete one assignment repository",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "repoId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SignInRequest": {
            "type": "object",
            "required": ["access_token"],
            "properties": {
                "access_token": {"type": "string"}
            }
        },
        "ProvisionRequest": {
            "type": "object",
            "required": ["deliverable_id"],
            "properties": {
                "deliverable_id": {"type": "string"},
                "member_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "FormTeamRequest": {
            "type": "object",
            "required": ["deliverable_id"],
            "properties": {
                "deliverable_id": {"type": "string"},
                "member_ids": {"type": "array", "items": {"type": "string"}},
                "admin_override": {"type": "boolean"}
            }
        },
        "GradeRequest": {
            "type": "object",
            "required": ["person_id", "deliverable_id"],
            "properties": {
                "person_id": {"type": "string"},
                "deliverable_id": {"type": "string"},
                "score": {"type": "number", "minimum": 0, "maximum": 100},
                "comment": {"type": "string"},
                "url_name": {"type": "string"},
                "url": {"type": "string"},
                "source": {"type": "string", "enum": ["AUTOTEST", "STAFF"]},
                "custom": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
