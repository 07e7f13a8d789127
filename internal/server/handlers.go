package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Rivega42/FRADECT/internal/decisions"
	"github.com/Rivega42/FRADECT/internal/engine"
	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/policy"
	"github.com/Rivega42/FRADECT/internal/validation"
)

// writeError maps the engine's error taxonomy to HTTP. The split callers
// care about: 400/422 mean fix your request or configuration, 503 means
// retry later, 409 means the operation already happened differently.
func writeError(c *gin.Context, err error) {
	var (
		incomplete *event.IncompleteEventError
		unknownPol *policy.UnknownPolicyError
		allFailed  *engine.AllSourcesFailedError
		dupOutcome *decisions.DuplicateOutcomeError
	)

	switch {
	case errors.As(err, &incomplete):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "incomplete_event",
			"message": err.Error(),
			"missing": incomplete.Missing,
		})
	case errors.As(err, &unknownPol):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "unknown_policy",
			"message": err.Error() + "; contact support to configure this module",
		})
	case errors.As(err, &allFailed):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "all_sources_failed",
			"message":   "no scoring source was available; retry later",
			"retryable": true,
		})
	case errors.As(err, &dupOutcome):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "duplicate_outcome",
			"message":  err.Error(),
			"existing": dupOutcome.Existing,
		})
	case errors.Is(err, event.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_event_kind", "message": err.Error()})
	case errors.Is(err, decisions.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "decision record not found"})
	case errors.Is(err, engine.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "batch job not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "An unexpected error occurred"})
	}
}

type scoreRequestBody struct {
	Event          *event.Event `json:"event" binding:"required"`
	IncludeFactors bool         `json:"includeFactors"`
}

// scoreHandler is the synchronous scoring entry point.
func (s *Server) scoreHandler(c *gin.Context) {
	var body scoreRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	s.applyTenantHeader(c, body.Event)

	resp, err := s.svc.Score(c.Request.Context(), engine.ScoreRequest{
		Event:          body.Event,
		IncludeFactors: body.IncludeFactors,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type batchRequestBody struct {
	Events []*event.Event `json:"events" binding:"required"`
}

func (s *Server) submitBatchHandler(c *gin.Context) {
	var body batchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if len(body.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "batch contains no events"})
		return
	}
	if len(body.Events) > validation.MaxBatchEvents {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": "batch exceeds the maximum of " + strconv.Itoa(validation.MaxBatchEvents) + " events",
		})
		return
	}
	for _, e := range body.Events {
		s.applyTenantHeader(c, e)
	}

	job, err := s.svc.SubmitBatch(c.Request.Context(), body.Events)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) batchStatusHandler(c *gin.Context) {
	job, err := s.svc.JobStatus(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) getDecisionHandler(c *gin.Context) {
	rec, err := s.svc.GetDecision(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listDecisionsHandler(c *gin.Context) {
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}
	if !validation.IsValidTenantID(tenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tenant", "message": "a valid tenant id is required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	list, err := s.svc.ListDecisions(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": list, "count": len(list)})
}

type outcomeRequestBody struct {
	Outcome decisions.Outcome `json:"outcome" binding:"required"`
}

func (s *Server) recordOutcomeHandler(c *gin.Context) {
	var body outcomeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !body.Outcome.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_outcome",
			"message": "outcome must be confirmed_fraud, false_positive, or confirmed_good",
		})
		return
	}

	rec, err := s.svc.RecordOutcome(c.Request.Context(), c.Param("id"), body.Outcome)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listPoliciesHandler(c *gin.Context) {
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}
	if !validation.IsValidTenantID(tenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tenant", "message": "a valid tenant id is required"})
		return
	}

	list, err := s.policies.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": list, "count": len(list)})
}

func (s *Server) putPolicyHandler(c *gin.Context) {
	var p policy.Policy
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if !validation.IsValidTenantID(p.TenantID) || p.Module == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_policy", "message": "tenantId and module are required"})
		return
	}

	if err := s.policies.Put(c.Request.Context(), &p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_policy", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &p)
}

// applyTenantHeader fills the event context from the X-Tenant-ID header
// when the body omits it.
func (s *Server) applyTenantHeader(c *gin.Context, e *event.Event) {
	if e == nil {
		return
	}
	if e.Context.TenantID == "" {
		e.Context.TenantID = c.GetHeader("X-Tenant-ID")
	}
}
