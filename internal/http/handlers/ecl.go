package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/termgraph-backend/internal/http/response"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/ecl"
	"github.com/yungbote/termgraph-backend/internal/snomed/semidx"
)

type ECLHandler struct {
	svc       *ecl.Service
	rebuilder *semidx.Rebuilder
}

func NewECLHandler(svc *ecl.Service, rebuilder *semidx.Rebuilder) *ECLHandler {
	return &ECLHandler{svc: svc, rebuilder: rebuilder}
}

// GET /api/branches/:branch/concepts?ecl=...
func (h *ECLHandler) Execute(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	expression := c.Query("ecl")
	if expression == "" {
		response.RespondErr(c, fmt.Errorf("ecl query parameter required: %w", errors.ErrInvalidArgument))
		return
	}
	stated := c.Query("form") == "stated"
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	page, err := h.svc.Execute(requestCtx(c), path, expression, stated, offset, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /api/branches/:branch/semantic-index/rebuild
func (h *ECLHandler) RebuildIndex(c *gin.Context) {
	path, err := branchParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.rebuilder.Rebuild(requestCtx(c), path); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondNoContent(c)
}
