package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ledger-config/internal/auth"
	"ledger-config/internal/bulk"
	"ledger-config/internal/entity"
	"ledger-config/internal/process"
	"ledger-config/pkg/logger"
	"ledger-config/pkg/utils"

	"github.com/gin-gonic/gin"
)

// BulkOptions wires bulk uploads. Cap is optional.
type BulkOptions struct {
	Engine         *bulk.Engine
	Cap            *utils.ConcurrencyCap
	MaxUploadBytes int64
}

// EntityHandlers exposes the REST surface of one entity kind.
type EntityHandlers[T any] struct {
	svc  *entity.Service[T]
	bulk BulkOptions
}

func NewEntityHandlers[T any](svc *entity.Service[T], bulk BulkOptions) *EntityHandlers[T] {
	return &EntityHandlers[T]{svc: svc, bulk: bulk}
}

// Register mounts the routes under /<kind>. read and write are the authorization middlewares.
func (h *EntityHandlers[T]) Register(rg *gin.RouterGroup, read, write gin.HandlerFunc) {
	g := rg.Group("/" + h.svc.Kind())
	g.POST("/add", write, h.Add)
	g.POST("/add/bulk", write, h.AddBulk)
	g.PUT("/update/:id", write, h.Update)
	g.DELETE("/delete/:id", write, h.Delete)
	g.GET("/get-all", read, h.GetAll)
	g.GET("/get/:id", read, h.Get)
	g.GET("/history/:id", read, h.History)
	g.GET("/get-demo-bulk-insert-file/csv", read, h.DemoCSV)
}

func actor(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		Fail(c, http.StatusUnauthorized, "authenticated actor required", nil)
		return "", false
	}
	return uid, true
}

func (h *EntityHandlers[T]) Add(c *gin.Context) {
	uid, ok := actor(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		Fail(c, http.StatusBadRequest, "cannot read request body", nil)
		return
	}
	rec, err := h.svc.Create(c.Request.Context(), uid, body)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" created successfully", rec)
}

func (h *EntityHandlers[T]) Update(c *gin.Context) {
	uid, ok := actor(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		Fail(c, http.StatusBadRequest, "cannot read request body", nil)
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), uid, c.Param("id"), body)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" updated successfully", rec)
}

type deleteRequest struct {
	DeleteReason string `json:"deleteReason"`
}

func (h *EntityHandlers[T]) Delete(c *gin.Context) {
	uid, ok := actor(c)
	if !ok {
		return
	}
	var req deleteRequest
	body, err := c.GetRawData()
	if err != nil {
		Fail(c, http.StatusBadRequest, "cannot read request body", nil)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			Fail(c, http.StatusBadRequest, "request body must be a JSON object", nil)
			return
		}
	}
	if req.DeleteReason == "" {
		req.DeleteReason = c.Query("deleteReason")
	}
	rec, err := h.svc.Delete(c.Request.Context(), uid, c.Param("id"), req.DeleteReason)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" deleted successfully", rec)
}

func (h *EntityHandlers[T]) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" fetched successfully", rec)
}

func (h *EntityHandlers[T]) GetAll(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		Fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	recs, err := h.svc.List(c.Request.Context(), page)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" list fetched successfully", recs)
}

func (h *EntityHandlers[T]) History(c *gin.Context) {
	recs, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, h.svc.Label()+" history fetched successfully", recs)
}

func (h *EntityHandlers[T]) DemoCSV(c *gin.Context) {
	body, err := h.svc.TemplateCSV()
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-bulk-insert.csv"`, h.svc.Kind()))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

func (h *EntityHandlers[T]) AddBulk(c *gin.Context) {
	uid, ok := actor(c)
	if !ok {
		return
	}
	if h.bulk.Engine == nil {
		Fail(c, http.StatusServiceUnavailable, "bulk upload is not configured", nil)
		return
	}
	if h.bulk.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bulk.MaxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Fail(c, http.StatusRequestEntityTooLarge, "file is too large", nil)
			return
		}
		Fail(c, http.StatusBadRequest, "file is required", gin.H{"file": "is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		Fail(c, http.StatusBadRequest, "cannot open uploaded file", nil)
		return
	}
	defer f.Close()

	if err := bulk.CheckCSV(fh.Filename, f); err != nil {
		if errors.Is(err, bulk.ErrNotCSV) || errors.Is(err, bulk.ErrMissingFile) {
			Fail(c, http.StatusBadRequest, "only .csv files are accepted", gin.H{"file": err.Error()})
			return
		}
		WriteError(c, err)
		return
	}

	ctx := c.Request.Context()
	kind := h.svc.Kind()
	if h.bulk.Cap != nil {
		acquired, err := h.bulk.Cap.Acquire(ctx, kind)
		switch {
		case err != nil:
			logger.FromGin(c).Warn("bulk cap unavailable, continuing", "kind", kind, "err", err)
		case !acquired:
			Fail(c, http.StatusTooManyRequests, "too many bulk uploads in progress for "+kind, nil)
			return
		default:
			defer func() {
				if err := h.bulk.Cap.Release(context.WithoutCancel(ctx), kind); err != nil {
					logger.FromGin(c).Warn("bulk cap release failed", "kind", kind, "err", err)
				}
			}()
		}
	}

	job := bulk.Job{Kind: kind, Actor: uid, FileName: fh.Filename, Columns: h.svc.Columns()}
	sum, err := h.bulk.Engine.Run(ctx, job, f, func(ctx context.Context, _ int, row map[string]string) (string, error) {
		rec, err := h.svc.CreateFromRow(ctx, uid, row)
		return rec.ID, err
	})
	if err != nil {
		if sum.ProcessID == "" {
			WriteError(c, err)
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, bulk.ErrInvalidHeader) || errors.Is(err, bulk.ErrEmptyFile) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, Envelope{Success: false, Msg: "bulk upload failed: " + err.Error(), Data: sum})
		return
	}

	msg := "bulk upload completed"
	if sum.Status == process.StatusPartiallyDone {
		msg = "bulk upload completed with errors"
	}
	OK(c, msg, sum)
}

func pageFromQuery(c *gin.Context) (entity.Page, error) {
	var p entity.Page
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errors.New("limit must be a non-negative integer")
		}
		p.Limit = n
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errors.New("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p.Normalize(), nil
}
