package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/http/response"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/concepts"
)

type ConceptHandler struct {
	svc *concepts.Service
}

func NewConceptHandler(svc *concepts.Service) *ConceptHandler {
	return &ConceptHandler{svc: svc}
}

// GET /api/branches/:branch/concepts/:conceptId
func (h *ConceptHandler) Get(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	concept, err := h.svc.Find(requestCtx(c), path, c.Param("conceptId"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, concept)
}

// POST /api/branches/:branch/concepts
func (h *ConceptHandler) Create(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var concept domain.Concept
	if err := c.ShouldBindJSON(&concept); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	saved, err := h.svc.Create(requestCtx(c), path, &concept)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, saved)
}

// PUT /api/branches/:branch/concepts/:conceptId
func (h *ConceptHandler) Update(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var concept domain.Concept
	if err := c.ShouldBindJSON(&concept); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	if concept.ConceptID == "" {
		concept.ConceptID = c.Param("conceptId")
	}
	if concept.ConceptID != c.Param("conceptId") {
		response.RespondErr(c, fmt.Errorf("concept id mismatch: %w", errors.ErrInvalidArgument))
		return
	}
	saved, err := h.svc.Update(requestCtx(c), path, &concept)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, saved)
}

type bulkConceptsRequest struct {
	Concepts []*domain.Concept `json:"concepts" binding:"required"`
}

// POST /api/branches/:branch/concepts/bulk
func (h *ConceptHandler) Bulk(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req bulkConceptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	saved, err := h.svc.CreateUpdate(requestCtx(c), path, req.Concepts)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": saved, "total": len(saved)})
}

// DELETE /api/branches/:branch/concepts/:conceptId
func (h *ConceptHandler) Delete(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	force := c.Query("force") == "true"
	if err := h.svc.Delete(requestCtx(c), path, c.Param("conceptId"), force); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}
