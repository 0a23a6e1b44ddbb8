package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Attendance API",
        "description": "Attendance marking, summaries and alerting engine",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Attendance", "description": "Attendance marking and history"},
        {"name": "Summaries", "description": "Daily, subject and student roll-ups"},
        {"name": "Alerts", "description": "Threshold alerts and notification"},
        {"name": "Reports", "description": "Downloadable CSV/PDF reports"}
    ],
    "paths": {
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["present", "absent", "late", "excused"]},
                    {"name": "date_from", "in": "query", "type": "string", "format": "date"},
                    {"name": "date_to", "in": "query", "type": "string", "format": "date"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkAttendanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already marked; the existing record is returned in error details"},
                    "422": {"description": "Student has no active enrollment in the subject"}
                }
            }
        },
        "/attendance/bulk": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance for many students",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkMarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-item results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/{id}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Fetch one attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Attendance"],
                "summary": "Update an attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated with a new history entry"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Attendance"],
                "summary": "Delete an attendance record (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/summaries/daily": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Daily attendance summary",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "subject_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/summaries/subjects/{id}": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Subject summary against the active roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Subject not found"}
                }
            }
        },
        "/summaries/students": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Per-student roll-up",
                "parameters": [
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string", "format": "date"},
                    {"name": "date_to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/summaries/students/{id}": {
            "get": {
                "tags": ["Summaries"],
                "summary": "One student's summary with per-subject breakdown",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/alerts": {
            "get": {
                "tags": ["Alerts"],
                "summary": "List alerts",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "enum": ["consecutive_absence", "low_attendance"]},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "acknowledged", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/alerts/scan": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Run an alert scan now (admin)",
                "responses": {
                    "200": {"description": "Scan result"},
                    "409": {"description": "A scan is already running"}
                }
            }
        },
        "/alerts/acknowledge": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Acknowledge many alerts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AcknowledgeManyRequest"}}
                ],
                "responses": {
                    "200": {"description": "Count of alerts acknowledged"}
                }
            }
        },
        "/alerts/{id}/acknowledge": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Acknowledge one alert",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Acknowledged"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/alerts/{id}/notify": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Send an alert to the named recipients, or the configured ones",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": false, "schema": {
                        "type": "object",
                        "properties": {
                            "recipients": {"type": "array", "items": {"type": "string", "enum": ["guardian", "student", "admin"]}}
                        }
                    }}
                ],
                "responses": {
                    "204": {"description": "Sent to at least one recipient"},
                    "422": {"description": "No reachable recipients"}
                }
            }
        },
        "/alerts/{id}": {
            "delete": {
                "tags": ["Alerts"],
                "summary": "Dismiss an alert (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Dismissed"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/alerts/config": {
            "get": {
                "tags": ["Alerts"],
                "summary": "Read alerting thresholds",
                "responses": {
                    "200": {"description": "Stored or default config"}
                }
            },
            "put": {
                "tags": ["Alerts"],
                "summary": "Update alerting thresholds (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAlertConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "Merged config"},
                    "400": {"description": "Threshold out of range"}
                }
            }
        },
        "/alerts/reports/low-attendance": {
            "get": {
                "tags": ["Alerts"],
                "summary": "Students below a rate threshold, without creating alerts",
                "parameters": [
                    {"name": "threshold", "in": "query", "type": "number"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string", "format": "date"},
                    {"name": "date_to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/reports/daily": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download the daily summary",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/reports/students": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download the per-student roll-up",
                "parameters": [
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string", "format": "date"},
                    {"name": "date_to", "in": "query", "type": "string", "format": "date"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        }
    },
    "definitions": {
        "MarkAttendanceRequest": {
            "type": "object",
            "required": ["student_id", "date", "status"],
            "properties": {
                "student_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "status": {"type": "string", "enum": ["present", "absent", "late", "excused"]},
                "time_slot": {"type": "string", "enum": ["arrival", "departure"]},
                "schedule_slot": {"type": "string"},
                "remarks": {"type": "string", "maxLength": 500}
            }
        },
        "UpdateAttendanceRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["present", "absent", "late", "excused"]},
                "time_slot": {"type": "string", "enum": ["arrival", "departure"]},
                "schedule_slot": {"type": "string"},
                "remarks": {"type": "string", "maxLength": 500}
            }
        },
        "BulkMarkRequest": {
            "type": "object",
            "required": ["date", "items"],
            "properties": {
                "subject_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "time_slot": {"type": "string", "enum": ["arrival", "departure"]},
                "schedule_slot": {"type": "string"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": ["student_id", "status"],
                        "properties": {
                            "student_id": {"type": "string"},
                            "status": {"type": "string"},
                            "remarks": {"type": "string"}
                        }
                    }
                }
            }
        },
        "AcknowledgeManyRequest": {
            "type": "object",
            "required": ["ids"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "UpdateAlertConfigRequest": {
            "type": "object",
            "properties": {
                "consecutive_absence_threshold": {"type": "integer", "minimum": 1, "maximum": 30},
                "low_attendance_threshold": {"type": "number", "minimum": 0, "maximum": 100},
                "enable_consecutive_alerts": {"type": "boolean"},
                "enable_low_attendance_alerts": {"type": "boolean"},
                "enable_pattern_alerts": {"type": "boolean"},
                "auto_send_email": {"type": "boolean"},
                "email_recipients": {"type": "array", "items": {"type": "string", "enum": ["guardian", "student", "admin"]}}
            }
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
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
