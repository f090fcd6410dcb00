package pathutil

import (
	"mime"
	"path"
	"strings"
)

// DefaultContentType is used when the extension is unknown.
const DefaultContentType = "application/octet-stream"

var webTypes = map[string]string{
	".css":   "text/css",
	".csv":   "text/csv",
	".eot":   "application/vnd.ms-fontobject",
	".gif":   "image/gif",
	".htm":   "text/html",
	".html":  "text/html",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "application/javascript",
	".json":  "application/json",
	".map":   "application/json",
	".mjs":   "application/javascript",
	".mp4":   "video/mp4",
	".otf":   "font/otf",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".ttf":   "font/ttf",
	".txt":   "text/plain",
	".wasm":  "application/wasm",
	".webm":  "video/webm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xml":   "application/xml",
}

// ContentType classifies filename by its extension. Common web asset types come from a
// fixed table so uploads are stable across hosts; anything else falls back to the
// system MIME database.
func ContentType(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return DefaultContentType
	}
	if t, ok := webTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultContentType
}
