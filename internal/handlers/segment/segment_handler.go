package segment

import (
	"errors"
	"net/http"
	"strconv"

	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
	"github.com/aykha18/tajir-loyalty/internal/pkg/response"
	service "github.com/aykha18/tajir-loyalty/internal/service/segment"

	"github.com/gin-gonic/gin"
)

type SegmentHandler struct {
	engine *service.Engine
}

func NewSegmentHandler(engine *service.Engine) *SegmentHandler {
	return &SegmentHandler{engine: engine}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

// Run segments every customer of the tenant and returns assignments plus
// per-segment insights.
func (h *SegmentHandler) Run(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	result, err := h.engine.Run(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to run segmentation", err)
		return
	}

	response.Success(c, http.StatusOK, "segmentation complete", result)
}

type predictRequest struct {
	Features []float64 `json:"features" binding:"required"`
}

// Predict assigns a raw feature vector to a segment using the tenant's cached
// scaler and centroids.
func (h *SegmentHandler) Predict(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	label, err := h.engine.Predict(c.Request.Context(), tenantID, req.Features)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, xerrors.ErrInvalidInput) {
			status = http.StatusBadRequest
		} else if errors.Is(err, xerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		response.Error(c, status, "failed to predict segment", err)
		return
	}

	response.Success(c, http.StatusOK, "segment predicted", gin.H{"segment_label": label})
}
