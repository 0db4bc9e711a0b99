package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/service"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/pkg/logger"
)

// RegisterDocumentRoutes mounts the document API on r. The caller installs
// authentication on r; hub may be nil, which disables the live endpoint.
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service, hub *realtime.Hub) {
	h := &handler{svc: svc, hub: hub}

	r.GET("/documents", h.list)
	r.POST("/documents", h.create)
	r.GET("/documents/:id", h.get)
	r.DELETE("/documents/:id", h.delete)
	r.PATCH("/documents/:id/title", h.updateTitle)
	r.PUT("/documents/:id/content", h.updateContent)
	r.GET("/documents/:id/share", h.share)
	r.PUT("/documents/:id/share", h.setPublic)
	r.GET("/documents/:id/snapshot", h.snapshot)
	r.GET("/documents/:id/live", h.live)

	r.GET("/documents/:id/versions", h.listVersions)
	r.POST("/documents/:id/versions", h.saveCheckpoint)
	r.POST("/documents/:id/versions/:vid/restore", h.restoreVersion)
	r.GET("/documents/:id/versions/:vid/diff", h.diffVersion)
	r.GET("/documents/:id/versions/:vid/download", h.downloadVersion)

	r.GET("/documents/:id/comments", h.listComments)
	r.POST("/documents/:id/comments", h.addComment)
	r.POST("/documents/:id/comments/:cid/resolve", h.toggleResolved)

	r.GET("/documents/:id/threads", h.listThreads)
	r.POST("/documents/:id/threads", h.createThread)
	r.GET("/documents/:id/threads/:tid", h.getThread)
	r.DELETE("/documents/:id/threads/:tid", h.deleteThread)
	r.POST("/documents/:id/threads/:tid/replies", h.replyThread)
}

type handler struct {
	svc service.Service
	hub *realtime.Hub
}

// writeError maps service errors onto status codes. A stale write also
// returns the stored document so the client can rebase.
func writeError(c *gin.Context, err error) {
	var stale *document.StaleWriteError
	switch {
	case errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "current": stale.Current})
	case errors.Is(err, document.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bind decodes an optional JSON body; an empty body leaves req untouched.
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *handler) list(c *gin.Context) {
	list, err := h.svc.ListOwned(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) create(c *gin.Context) {
	var req service.CreateInput
	if !bind(c, &req) {
		return
	}
	d, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *handler) get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) updateTitle(c *gin.Context) {
	var req struct {
		Title *string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.UpdateTitle(c.Request.Context(), c.Param("id"), *req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) updateContent(c *gin.Context) {
	var req struct {
		Content *string `json:"content" binding:"required"`
		BaseSeq int64   `json:"baseSeq"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.UpdateContent(c.Request.Context(), c.Param("id"), *req.Content, req.BaseSeq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) share(c *gin.Context) {
	info, err := h.svc.Share(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) setPublic(c *gin.Context) {
	var req struct {
		IsPublic *bool `json:"isPublic" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.SetPublic(ctx, c.Param("id"), *req.IsPublic); err != nil {
		writeError(c, err)
		return
	}
	info, err := h.svc.Share(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) snapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) live(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates disabled"})
		return
	}
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if err := realtime.Serve(h.hub, c.Writer, c.Request, id); err != nil {
		logger.Debugf("live %s ended: %v", id, err)
	}
}

func (h *handler) listVersions(c *gin.Context) {
	list, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) saveCheckpoint(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bind(c, &req) {
		return
	}
	v, err := h.svc.SaveCheckpoint(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *handler) restoreVersion(c *gin.Context) {
	d, err := h.svc.RestoreVersion(c.Request.Context(), c.Param("id"), c.Param("vid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) diffVersion(c *gin.Context) {
	segs, err := h.svc.DiffVersion(c.Request.Context(), c.Param("id"), c.Param("vid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": segs})
}

func (h *handler) downloadVersion(c *gin.Context) {
	dl, err := h.svc.VersionDownload(c.Request.Context(), c.Param("id"), c.Param("vid"))
	if err != nil {
		writeError(c, err)
		return
	}
	if dl.URL != "" {
		c.Redirect(http.StatusFound, dl.URL)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+dl.Filename+`"`)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dl.Content))
}

func (h *handler) listComments(c *gin.Context) {
	list, err := h.svc.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) addComment(c *gin.Context) {
	var req struct {
		Content      string `json:"content"`
		SelectedText string `json:"selectedText"`
	}
	if !bind(c, &req) {
		return
	}
	cm, err := h.svc.AddComment(c.Request.Context(), c.Param("id"), req.Content, req.SelectedText)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *handler) toggleResolved(c *gin.Context) {
	cm, err := h.svc.ToggleResolved(c.Request.Context(), c.Param("id"), c.Param("cid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (h *handler) listThreads(c *gin.Context) {
	list, err := h.svc.ListThreads(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) getThread(c *gin.Context) {
	t, err := h.svc.GetThread(c.Request.Context(), c.Param("id"), c.Param("tid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handler) createThread(c *gin.Context) {
	var req service.ThreadInput
	if !bind(c, &req) {
		return
	}
	t, err := h.svc.CreateThread(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handler) replyThread(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bind(c, &req) {
		return
	}
	t, err := h.svc.ReplyThread(c.Request.Context(), c.Param("id"), c.Param("tid"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handler) deleteThread(c *gin.Context) {
	if err := h.svc.DeleteThread(c.Request.Context(), c.Param("id"), c.Param("tid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
