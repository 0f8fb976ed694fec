package handlers

import (
	"fmt"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/termgraph-backend/internal/http/response"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type BranchHandler struct {
	vcs      *vc.Service
	branches vc.Registry
}

func NewBranchHandler(vcs *vc.Service) *BranchHandler {
	return &BranchHandler{vcs: vcs, branches: vcs.Registry()}
}

// branchParam reads the :branch segment. Slashes in branch paths arrive
// percent-encoded (MAIN%2FPROJ), the router keeps the raw value.
func branchParam(c *gin.Context) (string, error) {
	raw := c.Param("branch")
	path, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid branch path %q: %w", raw, errors.ErrInvalidArgument)
	}
	return path, nil
}

func requestCtx(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

type createBranchRequest struct {
	Path string `json:"path" binding:"required"`
}

// POST /api/branches
func (h *BranchHandler) Create(c *gin.Context) {
	var req createBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	branch, err := h.branches.Create(requestCtx(c), req.Path)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, branch)
}

// GET /api/branches/:branch
func (h *BranchHandler) Get(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	branch, err := h.branches.Find(requestCtx(c), path)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, branch)
}

// GET /api/branches/:branch/children
func (h *BranchHandler) Children(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	immediate := c.DefaultQuery("immediateChildren", "true") == "true"
	children, err := h.branches.FindChildren(requestCtx(c), path, immediate)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": children, "total": len(children)})
}

type updateMetadataRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// PUT /api/branches/:branch/metadata
func (h *BranchHandler) UpdateMetadata(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req updateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%s: %w", err.Error(), errors.ErrInvalidArgument))
		return
	}
	branch, err := h.branches.UpdateMetadata(requestCtx(c), path, req.Metadata)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, branch)
}

// POST /api/branches/:branch/rebase
func (h *BranchHandler) Rebase(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.vcs.Rebase(requestCtx(c), path); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}

// POST /api/branches/:branch/promote
func (h *BranchHandler) Promote(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.vcs.Promote(requestCtx(c), path); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}
