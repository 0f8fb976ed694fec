package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/http/response"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/members"
)

type MemberHandler struct {
	svc *members.Service
}

func NewMemberHandler(svc *members.Service) *MemberHandler {
	return &MemberHandler{svc: svc}
}

// GET /api/branches/:branch/members/:memberId
func (h *MemberHandler) Get(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	member, err := h.svc.FindMember(requestCtx(c), path, c.Param("memberId"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, member)
}

// GET /api/branches/:branch/members
func (h *MemberHandler) List(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	filter := components.MemberFilter{
		RefsetID: c.Query("refsetId"),
	}
	if referenced := c.Query("referencedComponentId"); referenced != "" {
		filter.ReferencedComponentIDs = []string{referenced}
	}
	if activeParam := c.Query("active"); activeParam != "" {
		active := activeParam == "true"
		filter.Active = &active
	}
	found, err := h.svc.FindMembers(requestCtx(c), path, filter)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": found, "total": len(found)})
}

type createMembersRequest struct {
	Members []*domain.ReferenceSetMember `json:"members" binding:"required"`
}

// POST /api/branches/:branch/members
func (h *MemberHandler) Create(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req createMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	saved, err := h.svc.CreateMembers(requestCtx(c), path, req.Members)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"items": saved, "total": len(saved)})
}

// DELETE /api/branches/:branch/members/:memberId
func (h *MemberHandler) Delete(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	force := c.Query("force") == "true"
	if err := h.svc.DeleteMember(requestCtx(c), path, c.Param("memberId"), force); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}
