package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cleaning-crm/common"
	"cleaning-crm/importer"
	"cleaning-crm/parsers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReplaceMappingRequest is the body of PUT /imports/:id/mapping
type ReplaceMappingRequest struct {
	Mapping importer.ColumnMapping `json:"mapping" binding:"required"`
}

// SetMappingRequest is the body of PATCH /imports/:id/mapping
type SetMappingRequest struct {
	Field  string `json:"field" binding:"required"`
	Column string `json:"column"` // empty ignores the field
}

// Handler serves import sessions. Rows go to the injected sink; the handler
// never opens a data store connection of its own.
type Handler struct {
	store *Store
	sink  importer.Sink
	cfg   *common.Config
	log   logrus.FieldLogger

	runs sync.WaitGroup
}

func NewHandler(store *Store, sink importer.Sink, cfg *common.Config, log logrus.FieldLogger) *Handler {
	return &Handler{store: store, sink: sink, cfg: cfg, log: log}
}

// RegisterRoutes mounts the import endpoints on r
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateImport)
	r.GET("/:id", h.GetImport)
	r.PUT("/:id/mapping", h.ReplaceMapping)
	r.PATCH("/:id/mapping", h.SetMapping)
	r.POST("/:id/run", h.RunImport)
	r.POST("/:id/file", h.ChangeFile)
	r.DELETE("/:id", h.CloseImport)
}

// RunEviction drops idle sessions until ctx is done. Sessions untouched for
// IMPORT_SESSION_TTL go, whatever phase they ended in, unless a run is active.
func (h *Handler) RunEviction(ctx context.Context) {
	ttl := h.cfg.ImportSessionTTL
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	h.store.RunEviction(ctx, interval, ttl, h.log)
}

// Wait blocks until every started run has finished
func (h *Handler) Wait() {
	h.runs.Wait()
}

// CreateImport godoc
// @Summary Upload a CSV file and get a suggested column mapping
// @Description Parses the first rows for preview and auto-maps headers to lead fields
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param delimiter formData string false "comma (default), semicolon, tab or pipe"
// @Success 201 {object} importer.Snapshot "Session in the map phase"
// @Failure 400 {object} map[string]interface{} "File could not be read; session stays in upload"
// @Router /imports [post]
func (h *Handler) CreateImport(c *gin.Context) {
	name, data, opts, ok := h.readUpload(c)
	if !ok {
		return
	}

	session := h.store.Create()
	log := h.log.WithField("session_id", session.ID())

	if err := session.Load(c.Request.Context(), name, data, opts); err != nil {
		log.WithError(err).Warn("uploaded file could not be parsed")
		c.JSON(http.StatusBadRequest, gin.H{"error": session.Snapshot().Error, "session": session.Snapshot()})
		return
	}

	snap := session.Snapshot()
	log.WithFields(logrus.Fields{"file": name, "headers": len(snap.Headers), "mapped": len(snap.Mapping)}).Info("import session opened")
	c.Set("rows_processed", len(snap.Preview))
	c.JSON(http.StatusCreated, snap)
}

// GetImport godoc
// @Summary Import session state and progress
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} importer.Snapshot
// @Failure 404 {object} map[string]string "Session not found"
// @Router /imports/{id} [get]
func (h *Handler) GetImport(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snap := session.Snapshot()
	c.Set("rows_processed", snap.Processed)
	c.JSON(http.StatusOK, snap)
}

// ReplaceMapping godoc
// @Summary Replace the whole column mapping
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body ReplaceMappingRequest true "Field key to column name"
// @Success 200 {object} importer.Snapshot
// @Failure 409 {object} map[string]string "Not in the map phase"
// @Router /imports/{id}/mapping [put]
func (h *Handler) ReplaceMapping(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req ReplaceMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.ReplaceMapping(req.Mapping); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// SetMapping godoc
// @Summary Point one field at a column, or ignore it
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body SetMappingRequest true "Field and column"
// @Success 200 {object} importer.Snapshot
// @Router /imports/{id}/mapping [patch]
func (h *Handler) SetMapping(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req SetMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.SetMapping(req.Field, req.Column); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// RunImport godoc
// @Summary Validate the mapping and start writing rows
// @Description Runs in the background; poll GET /imports/{id} for progress
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} importer.Snapshot "Processing started"
// @Failure 409 {object} map[string]string "Not in the map phase"
// @Failure 422 {object} map[string]interface{} "Mapping problems"
// @Router /imports/{id}/run [post]
func (h *Handler) RunImport(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.Begin(); err != nil {
		respondError(c, err)
		return
	}

	log := h.log.WithField("session_id", session.ID())
	im := importer.NewImporter(h.sink,
		importer.WithBatchSize(h.cfg.ImportBatchSize),
		importer.WithDelay(h.cfg.ImportBatchDelay),
		importer.WithLogger(log),
		importer.WithSuccessHook(func(r importer.Result) {
			log.WithFields(logrus.Fields{"imported": r.Imported, "batches": r.Batches}).Info("import completed")
		}),
	)

	// The run outlives the request and cannot be cancelled once started.
	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		if _, err := session.Run(context.Background(), im); err != nil {
			log.WithError(err).Warn("import stopped")
		}
	}()

	c.JSON(http.StatusAccepted, session.Snapshot())
}

// ChangeFile godoc
// @Summary Discard the current file and load another one
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "CSV file"
// @Success 200 {object} importer.Snapshot
// @Failure 409 {object} map[string]string "Import is running or finished"
// @Router /imports/{id}/file [post]
func (h *Handler) ChangeFile(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	name, data, opts, ok := h.readUpload(c)
	if !ok {
		return
	}

	if err := session.ChangeFile(); err != nil {
		respondError(c, err)
		return
	}
	if err := session.Load(c.Request.Context(), name, data, opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.Snapshot().Error, "session": session.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// CloseImport godoc
// @Summary Close a session
// @Tags imports
// @Param id path string true "Session ID"
// @Success 204
// @Failure 409 {object} map[string]string "Import is running"
// @Router /imports/{id} [delete]
func (h *Handler) CloseImport(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.Close(); err != nil {
		respondError(c, err)
		return
	}
	h.store.Delete(session.ID())
	c.Status(http.StatusNoContent)
}

func (h *Handler) session(c *gin.Context) (*importer.Session, bool) {
	session, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import session not found"})
		return nil, false
	}
	return session, true
}

// readUpload pulls the "file" part and the delimiter out of a multipart form
func (h *Handler) readUpload(c *gin.Context) (string, []byte, parsers.Options, bool) {
	if h.cfg.UploadMaxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.UploadMaxSize)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file is larger than %d bytes", h.cfg.UploadMaxSize)})
			return "", nil, parsers.Options{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return "", nil, parsers.Options{}, false
	}
	defer file.Close()

	comma, err := parsers.ParseDelimiter(c.PostForm("delimiter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, parsers.Options{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return "", nil, parsers.Options{}, false
	}

	return header.Filename, data, parsers.Options{Comma: comma, LazyQuotes: true}, true
}

// respondError maps session errors to status codes
func respondError(c *gin.Context, err error) {
	var mErr *importer.MappingError
	switch {
	case errors.As(err, &mErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "problems": mErr.Problems})
	case errors.Is(err, importer.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, importer.ErrInvalidMapping):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
