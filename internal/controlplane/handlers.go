package controlplane

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syncvault/internal/engine"
	"github.com/openmined/syncvault/internal/index"
	"github.com/openmined/syncvault/internal/transport"
	"github.com/openmined/syncvault/internal/version"
	"github.com/openmined/syncvault/internal/workspace"
)

// Service is what the control plane exposes. *engine.Engine implements it.
type Service interface {
	Status(ctx context.Context) (*engine.Status, error)
	History(ctx context.Context) (*index.Graph, error)
	Branches() (map[string]string, error)
	Sync(ctx context.Context) (*engine.Result, error)
}

type handler struct {
	svc Service
}

func (h *handler) Index(c *gin.Context) {
	info := version.Get()
	c.PureJSON(http.StatusOK, &IndexResponse{
		App:     info.App,
		Version: info.Short(),
		Build:   info,
	})
}

func (h *handler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusOK, st)
}

func (h *handler) History(c *gin.Context) {
	g, err := h.svc.History(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	branches, err := h.svc.Branches()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.PureJSON(http.StatusOK, &HistoryResponse{
		Nodes:    nonNil(g.Ordered()),
		Edges:    nonNil(g.Edges()),
		Roots:    nonNil(g.Roots()),
		Heads:    nonNil(g.Heads()),
		Branches: branches,
	})
}

func (h *handler) Branches(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	branches, err := h.svc.Branches()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusOK, &BranchesResponse{Current: st.Branch, Branches: branches})
}

// Sync runs a sync to completion. It is detached from the request so a
// client hanging up does not cut it short.
func (h *handler) Sync(c *gin.Context) {
	res, err := h.svc.Sync(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, engine.ErrSyncAlreadyRunning), errors.Is(err, workspace.ErrWorkspaceLocked):
		abortWithError(c, http.StatusConflict, ErrCodeSyncRunning, err)
	case errors.Is(err, transport.ErrTransport):
		abortWithError(c, http.StatusBadGateway, ErrCodeTransport, err)
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
	default:
		c.PureJSON(http.StatusOK, res)
	}
}
