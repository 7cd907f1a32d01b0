package google

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
)

const successPage = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Login Successful</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.success { color: #4ade80; font-size: 24px; margin-bottom: 10px; }
	</style>
</head>
<body>
	<div class="success">✅ Login Successful</div>
	<p>You can close this window and return to Antigravity Switch.</p>
	<script>setTimeout(() => window.close(), 2000);</script>
</body>
</html>`

const notFoundPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Not Found</title></head>
<body><h1>404 Not Found</h1></body>
</html>`

const errorPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Login Failed</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		.error { color: #f87171; font-size: 24px; margin-bottom: 10px; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<div class="error">❌ Login Failed</div>
	<p>Google returned: <code>%s</code></p>
	<p>Close this window and try again.</p>
</body>
</html>`

func errorPage(providerErr string) string {
	return fmt.Sprintf(errorPageTemplate, html.EscapeString(providerErr))
}

// writeCallbackPage writes a complete response and flushes it, so the
// browser gets the page even when the server is closed right after.
func writeCallbackPage(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
