package ginserver

import (
	"errors"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"rentcar/internal/app/policies"
	"rentcar/internal/app/services/auth"
)

const defaultMaxEvidenceBytes = 10 << 20

var errNotImage = errors.New("evidence must be an image")

// EvidenceHandler accepts check-in/check-out photos from staff and returns the reference
// to pass as an image on confirm-pickup or confirm-return.
type EvidenceHandler struct {
	Store    policies.EvidenceStore
	MaxBytes int64
}

func (h EvidenceHandler) Upload(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		writeError(c, auth.ErrUnauthenticated)
		return
	}
	if !p.HasRole(auth.RoleStaff) {
		writeError(c, auth.ErrForbidden)
		return
	}
	limit := h.MaxBytes
	if limit <= 0 {
		limit = defaultMaxEvidenceBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))

	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	if file.Size > limit {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "code": "too_large"})
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, errNotImage)
		return
	}
	body, err := file.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer body.Close()

	ref, err := h.Store.Upload(c.Request.Context(), c.PostForm("booking_id"), file.Filename, contentType, body, file.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ref": ref})
}

var _ EvidenceHTTP = EvidenceHandler{}
