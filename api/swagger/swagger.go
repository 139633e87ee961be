package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SmartAttend Integrity API",
        "description": "Attendance state machine, immutable audit ledger and clock drift protection",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Attendance", "description": "Attendance records and status transitions"},
        {"name": "Ledger", "description": "Immutable audit ledger"},
        {"name": "Integrity", "description": "Checksum verification"},
        {"name": "Flags", "description": "Integrity flags on attendance records"},
        {"name": "Drift", "description": "Clock drift audit trail"},
        {"name": "Exports", "description": "Audit-trail export artifacts"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/attendance/check-ins": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance for a session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid transition or blocked by clock drift", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/records": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "parameters": [
                    {"name": "sessionId", "in": "query", "type": "string"},
                    {"name": "subjectId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/records/{id}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Get attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/records/{id}/transition": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Transition an attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/entries": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Query ledger entries by scope",
                "parameters": [
                    {"name": "scope", "in": "query", "required": true, "type": "string"},
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Ledger"],
                "summary": "Append a domain audit entry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AppendEntryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/entries/{id}/verify": {
            "get": {
                "tags": ["Integrity"],
                "summary": "Verify one ledger entry's checksum",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/resources/{type}/{id}": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Full audit history of one resource",
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Generate an audit-trail export artifact",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportTrailRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export artifact via its signed token",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Artifact stream"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/verify-sweep": {
            "post": {
                "tags": ["Integrity"],
                "summary": "Run a verification sweep over the ledger",
                "parameters": [
                    {"name": "since", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/flags": {
            "get": {
                "tags": ["Flags"],
                "summary": "List integrity flags",
                "parameters": [
                    {"name": "recordId", "in": "query", "type": "string"},
                    {"name": "includeResolved", "in": "query", "type": "boolean"},
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Flags"],
                "summary": "Raise an integrity flag",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RaiseFlagRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/flags/{id}/resolve": {
            "post": {
                "tags": ["Flags"],
                "summary": "Resolve an open integrity flag",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveFlagRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/drift/events": {
            "get": {
                "tags": ["Drift"],
                "summary": "List clock drift events",
                "parameters": [
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "decision", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/drift/stats": {
            "get": {
                "tags": ["Drift"],
                "summary": "Aggregate drift statistics for a tenant",
                "parameters": [
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AttendanceRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "tenantId": {"type": "string"},
                "subjectId": {"type": "string"},
                "sessionId": {"type": "string"},
                "status": {"type": "string", "enum": ["UNMARKED", "PRESENT", "ABSENT", "LATE", "VERIFIED", "FLAGGED", "REVOKED"]},
                "statusReason": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "LedgerEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "scope": {"type": "string", "enum": ["GLOBAL", "TENANT", "USER", "ATTENDANCE"]},
                "tenantId": {"type": "string"},
                "userId": {"type": "string"},
                "actorId": {"type": "string"},
                "actionType": {"type": "string"},
                "resourceType": {"type": "string"},
                "resourceId": {"type": "string"},
                "beforeState": {"type": "object"},
                "afterState": {"type": "object"},
                "reason": {"type": "string"},
                "correlationId": {"type": "string"},
                "occurredAt": {"type": "string"},
                "checksum": {"type": "string"}
            }
        },
        "IntegrityFlag": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "attendanceRecordId": {"type": "string"},
                "tenantId": {"type": "string"},
                "flagType": {"type": "string"},
                "severity": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH"]},
                "state": {"type": "string", "enum": ["OPEN", "RESOLVED"]},
                "raisedBy": {"type": "string"},
                "reason": {"type": "string"},
                "resolution": {"type": "string"},
                "resolvedBy": {"type": "string"},
                "resolvedAt": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "DriftEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "tenantId": {"type": "string"},
                "userId": {"type": "string"},
                "clientTimestamp": {"type": "string"},
                "serverTimestamp": {"type": "string"},
                "driftSeconds": {"type": "integer"},
                "severity": {"type": "string", "enum": ["INFO", "WARNING", "CRITICAL"]},
                "decision": {"type": "string", "enum": ["ALLOW", "ALLOW_AND_FLAG", "BLOCK"]},
                "actionKind": {"type": "string"},
                "attendanceAffected": {"type": "boolean"},
                "correlationId": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "DriftStats": {
            "type": "object",
            "properties": {
                "tenantId": {"type": "string"},
                "from": {"type": "string"},
                "to": {"type": "string"},
                "total": {"type": "integer"},
                "infoCount": {"type": "integer"},
                "warningCount": {"type": "integer"},
                "criticalCount": {"type": "integer"},
                "blockedCount": {"type": "integer"},
                "meanAbsDriftSeconds": {"type": "number"}
            }
        },
        "IntegrityCheck": {
            "type": "object",
            "properties": {
                "entryId": {"type": "string"},
                "valid": {"type": "boolean"},
                "storedChecksum": {"type": "string"},
                "computedChecksum": {"type": "string"},
                "checkedAt": {"type": "string"}
            }
        },
        "IntegritySweep": {
            "type": "object",
            "properties": {
                "since": {"type": "string"},
                "scanned": {"type": "integer"},
                "mismatched": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/IntegrityCheck"}
                },
                "startedAt": {"type": "string"},
                "finishedAt": {"type": "string"}
            }
        },
        "CheckInRequest": {
            "type": "object",
            "properties": {
                "tenantId": {"type": "string"},
                "subjectId": {"type": "string"},
                "sessionId": {"type": "string"},
                "status": {"type": "string"},
                "reason": {"type": "string"},
                "clientTimestamp": {"type": "string"}
            },
            "required": ["subjectId", "sessionId", "status"]
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "targetStatus": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["targetStatus"]
        },
        "RaiseFlagRequest": {
            "type": "object",
            "properties": {
                "recordId": {"type": "string"},
                "flagType": {"type": "string"},
                "severity": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["recordId", "flagType", "severity", "reason"]
        },
        "ResolveFlagRequest": {
            "type": "object",
            "properties": {
                "resolution": {"type": "string"}
            },
            "required": ["resolution"]
        },
        "ExportTrailRequest": {
            "type": "object",
            "properties": {
                "scope": {"type": "string"},
                "tenantId": {"type": "string"},
                "userId": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "from": {"type": "string"},
                "to": {"type": "string"}
            },
            "required": ["scope", "format"]
        },
        "AppendEntryRequest": {
            "type": "object",
            "properties": {
                "scope": {"type": "string"},
                "tenantId": {"type": "string"},
                "userId": {"type": "string"},
                "actionType": {"type": "string"},
                "resourceType": {"type": "string"},
                "resourceId": {"type": "string"},
                "beforeState": {"type": "object"},
                "afterState": {"type": "object"},
                "reason": {"type": "string"}
            },
            "required": ["scope", "actionType", "resourceType", "resourceId"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
