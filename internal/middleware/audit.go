package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/agroc/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

// AuditLog logs every write operation (POST/PUT/DELETE) with the acting
// user and a masked body snippet.
func AuditLog() gin.HandlerFunc {
	auditLog := logger.Component("audit")
	return func(c *gin.Context) {
		method := c.Request.Method
		// Only audit write operations
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		// Multipart uploads are not buffered.
		var bodySnippet string
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(string(bodyBytes))
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		auditLog.Info().
			Str("module", module).
			Str("action", action).
			Uint("user_id", GetUserID(c)).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Str("body", bodySnippet).
			Msg(formatAuditMessage(GetEmail(c), method, c.Request.URL.Path, status))
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/solutions/:id/rate" + "POST" gives module="Solutions", action="Create"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(strings.TrimPrefix(fullPath, "/api/"), "/")

	// Extract first segment as module
	parts := strings.SplitN(path, "/", 2)
	// "test-predict" becomes "Test Predict"
	words := strings.Fields(strings.ReplaceAll(parts[0], "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	module = strings.Join(words, " ")
	if module == "" {
		module = "unknown"
	}

	// Determine action from HTTP method
	switch method {
	case "POST":
		action = "Create"
	case "PUT":
		action = "Update"
	case "DELETE":
		action = "Delete"
	default:
		action = method
	}

	return module, action
}

// formatAuditMessage creates a human-readable audit message.
func formatAuditMessage(email, method, path string, status int) string {
	if email == "" {
		email = "anonymous"
	}
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(email)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

// Body keys whose values never reach the audit log. Matched case-insensitively
// at any depth.
var sensitiveKeys = map[string]bool{"password": true, "token": true, "imagedata": true}

const maskedValue = "***"

// maskSensitiveFields redacts sensitive values of a JSON body. A body that
// is not JSON is not logged at all.
func maskSensitiveFields(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return "[non-JSON body omitted]"
	}
	out, err := json.Marshal(maskValue(doc))
	if err != nil {
		return "[non-JSON body omitted]"
	}
	return string(out)
}

func maskValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				t[k] = maskedValue
				continue
			}
			t[k] = maskValue(inner)
		}
	case []interface{}:
		for i, inner := range t {
			t[i] = maskValue(inner)
		}
	}
	return v
}
