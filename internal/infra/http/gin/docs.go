package ginserver

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"html/template"
	"net/http"

	gin "github.com/gin-gonic/gin"
)

//go:embed docs/openapi.json docs/index.html.tmpl
var docsFS embed.FS

const openAPIPath = "/docs/openapi.json"

// apiDocs serves the OpenAPI document and a Swagger UI page pointing at it.
type apiDocs struct {
	spec []byte
	etag string
	page []byte
}

func loadDocs() (*apiDocs, error) {
	spec, err := docsFS.ReadFile("docs/openapi.json")
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(docsFS, "docs/index.html.tmpl")
	if err != nil {
		return nil, err
	}
	var page bytes.Buffer
	if err := tmpl.Execute(&page, struct{ SpecURL string }{openAPIPath}); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(spec)
	return &apiDocs{spec: spec, etag: `"` + hex.EncodeToString(sum[:8]) + `"`, page: page.Bytes()}, nil
}

func (d *apiDocs) register(router gin.IRoutes) {
	router.GET(openAPIPath, func(c *gin.Context) {
		if c.GetHeader("If-None-Match") == d.etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", d.etag)
		c.Data(http.StatusOK, "application/json", d.spec)
	})
	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", d.page)
	})
}
