package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>PromptGist API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document. Document routes live under /api and require a
// bearer token.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "PromptGist", "version": "v0.2.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange authorization code / login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Current user", "responses": { "200": { "description": "signed-in identity" }, "401": { "description": "not signed in" } } }
    },
    "/api/documents": {
      "get": { "summary": "List documents owned by the caller", "responses": { "200": { "description": "documents, most recently updated first" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string"},"content":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "409": { "description": "id taken" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "403": { "description": "private" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document and its history", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/title": {
      "patch": { "summary": "Rename", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"}}}}}}, "responses": { "200": { "description": "document" } } }
    },
    "/api/documents/{id}/content": {
      "put": { "summary": "Save content", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"},"baseSeq":{"type":"integer"}}}}}}, "responses": { "200": { "description": "document" }, "409": { "description": "stale write; body carries current" } } }
    },
    "/api/documents/{id}/share": {
      "get": { "summary": "Share state", "responses": { "200": { "description": "isPublic and link" } } },
      "put": { "summary": "Toggle public", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"isPublic":{"type":"boolean"}}}}}}, "responses": { "200": { "description": "isPublic and link" } } }
    },
    "/api/documents/{id}/snapshot": { "get": { "summary": "Document with versions, comments and threads", "responses": { "200": { "description": "snapshot" } } } },
    "/api/documents/{id}/live": { "get": { "summary": "WebSocket change feed", "responses": { "101": { "description": "upgraded" }, "503": { "description": "disabled" } } } },
    "/api/documents/{id}/versions": {
      "get": { "summary": "List versions, newest first", "responses": { "200": { "description": "versions" } } },
      "post": { "summary": "Save checkpoint", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}}, "responses": { "201": { "description": "version" } } }
    },
    "/api/documents/{id}/versions/{vid}/restore": { "post": { "summary": "Restore version content", "responses": { "200": { "description": "document" } } } },
    "/api/documents/{id}/versions/{vid}/diff": { "get": { "summary": "Diff version against current", "responses": { "200": { "description": "segments" } } } },
    "/api/documents/{id}/versions/{vid}/download": { "get": { "summary": "Download version HTML", "responses": { "200": { "description": "attachment" }, "302": { "description": "archived copy" } } } },
    "/api/documents/{id}/comments": {
      "get": { "summary": "List comments, newest first", "responses": { "200": { "description": "comments" } } },
      "post": { "summary": "Add comment", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"},"selectedText":{"type":"string"}}}}}}, "responses": { "201": { "description": "comment" } } }
    },
    "/api/documents/{id}/comments/{cid}/resolve": { "post": { "summary": "Toggle resolved", "responses": { "200": { "description": "comment" } } } },
    "/api/documents/{id}/threads": {
      "get": { "summary": "List inline threads", "responses": { "200": { "description": "threads" } } },
      "post": { "summary": "Start thread on an anchor already in the content", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["id","text"],"properties":{"id":{"type":"string"},"quote":{"type":"string"},"text":{"type":"string"}}}}}}, "responses": { "201": { "description": "thread" } } }
    },
    "/api/documents/{id}/threads/{tid}": {
      "get": { "summary": "Get thread", "responses": { "200": { "description": "thread" } } },
      "delete": { "summary": "Delete thread and its anchor", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/threads/{tid}/replies": { "post": { "summary": "Reply", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"text":{"type":"string"}}}}}}, "responses": { "201": { "description": "thread" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
