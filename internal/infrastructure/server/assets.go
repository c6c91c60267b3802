package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// webTypes are fixed by extension. Other files are sniffed.
var webTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".map":  "application/json",
	".svg":  "image/svg+xml",
	".wasm": "application/wasm",
}

// compressMinSize is the smallest response body worth compressing.
const compressMinSize = 512

// assets serves renderer files under root, gzipped when the page accepts it.
// Paths never escape root.
func assets(root string, logger *logging.Logger) (gin.HandlerFunc, error) {
	compress, err := gzhttp.NewWrapper(gzhttp.MinSize(compressMinSize))
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		rel := path.Clean("/" + c.Param("path"))
		full := filepath.Join(root, filepath.FromSlash(rel))

		fi, err := os.Stat(full)
		if err != nil || fi.IsDir() {
			logger.Debug("Asset not found", zap.String("path", rel))
			c.Status(http.StatusNotFound)
			return
		}

		ct := contentType(full)
		compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", ct)
			http.ServeFile(w, r, full)
		})).ServeHTTP(c.Writer, c.Request)
	}, nil
}

func contentType(file string) string {
	if t, ok := webTypes[strings.ToLower(filepath.Ext(file))]; ok {
		return t
	}
	mt, err := mimetype.DetectFile(file)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
