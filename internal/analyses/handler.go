package analyses

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server/middleware"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server/respond"
)

const (
	msgMissingSubmitFields = "Missing required fields: videoUrl, patientId"
	msgMissingReviewFields = "Missing required fields"
	msgInvalidBody         = "Invalid request body"
	msgAnalysisFailed      = "AI analysis failed"
	msgNotFound            = "Report not found"
	msgInternal            = "Internal server error"
)

// boundaryNames maps domain field names to the names callers send.
var boundaryNames = map[string]string{
	"videoRef":  "videoUrl",
	"subjectId": "patientId",
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group. submitMiddleware
// runs only in front of the submit endpoint.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, submitMiddleware ...gin.HandlerFunc) {
	rg.POST("/analyze", append(submitMiddleware, h.submit)...)
	rg.GET("/reports", h.listReports)
	rg.GET("/reports/:id", h.getReport)
	rg.PATCH("/reports", h.updateReview)
}

type submitRequest struct {
	VideoURL     string `json:"videoUrl"`
	PatientID    string `json:"patientId"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type reviewRequest struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	analysis, err := h.Svc.Submit(requestContext(c), SubmitInput{
		SubjectID:    req.PatientID,
		VideoRef:     req.VideoURL,
		Note:         req.Description,
		ThumbnailURL: req.ThumbnailURL,
	})
	if analysis.ID != "" {
		c.Set("analysisId", analysis.ID)
		c.Set("statusTransition", "analyzing->"+analysis.Status)
	}
	if err != nil {
		writeSubmitError(c, analysis, err)
		return
	}
	respond.Success(c, http.StatusOK, analysis)
}

func writeSubmitError(c *gin.Context, analysis Analysis, err error) {
	var intakeErr *IntakeError
	var cfgErr *provider.ConfigurationError
	var pipelineErr *PipelineError
	switch {
	case errors.As(err, &intakeErr):
		respond.Error(c, http.StatusBadRequest, msgMissingSubmitFields, boundaryFields(intakeErr.Missing))
	case errors.As(err, &pipelineErr):
		respond.Write(c, http.StatusInternalServerError, respond.ErrorResponse{
			Error:   msgAnalysisFailed,
			Details: sanitizeError(pipelineErr.Err),
			Code:    pipelineErr.Code,
			Data:    analysis,
		})
	case errors.As(err, &cfgErr):
		respond.Error(c, http.StatusInternalServerError, "Server config error: "+cfgErr.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, msgInternal, nil)
	}
}

func (h *Handler) listReports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
		limit = parsed
	}
	items, err := h.Svc.ListRecent(requestContext(c), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, msgInternal, nil)
		return
	}
	respond.Success(c, http.StatusOK, items)
}

func (h *Handler) getReport(c *gin.Context) {
	analysis, err := h.Svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, msgNotFound, nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, msgInternal, nil)
		return
	}
	c.Set("analysisId", analysis.ID)
	respond.Success(c, http.StatusOK, analysis)
}

func (h *Handler) updateReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	analysis, err := h.Svc.UpdateReview(requestContext(c), ReviewInput{
		ID:      req.ID,
		Status:  req.Status,
		Comment: req.Comment,
	})
	if err != nil {
		var intakeErr *IntakeError
		switch {
		case errors.As(err, &intakeErr) && len(intakeErr.Missing) > 0:
			respond.Error(c, http.StatusBadRequest, msgMissingReviewFields, intakeErr.Missing)
		case errors.As(err, &intakeErr):
			respond.Error(c, http.StatusBadRequest, "Invalid review status", intakeErr.Reason)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, msgNotFound, nil)
		case errors.Is(err, ErrAnalysisInProgress):
			respond.Error(c, http.StatusConflict, "Report is still being analyzed", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, msgInternal, nil)
		}
		return
	}
	c.Set("analysisId", analysis.ID)
	respond.Success(c, http.StatusOK, analysis)
}

func boundaryFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if name, ok := boundaryNames[f]; ok {
			out = append(out, name)
			continue
		}
		out = append(out, f)
	}
	return out
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}
