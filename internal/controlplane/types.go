package controlplane

import (
	"github.com/gin-gonic/gin"
	"github.com/openmined/syncvault/internal/index"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/version"
)

const (
	ErrCodeUnauthorized   = "ERR_UNAUTHORIZED"
	ErrCodeSyncRunning    = "ERR_SYNC_RUNNING"
	ErrCodeTransport      = "ERR_TRANSPORT"
	ErrCodeUnknownError   = "ERR_UNKNOWN_ERROR"
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeMethodNotFound = "ERR_METHOD_NOT_ALLOWED"
)

type ErrorResponse struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

type IndexResponse struct {
	App     string       `json:"app"`
	Version string       `json:"version"`
	Build   version.Info `json:"build"`
}

// HistoryResponse is the snapshot DAG in node/edge form.
type HistoryResponse struct {
	Nodes    []snapshot.Header `json:"nodes"`
	Edges    []index.Edge      `json:"edges"`
	Roots    []string          `json:"roots"`
	Heads    []string          `json:"heads"`
	Branches map[string]string `json:"branches"`
}

type BranchesResponse struct {
	Current  string            `json:"current"`
	Branches map[string]string `json:"branches"`
}

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	_ = c.Error(err)
	c.PureJSON(status, &ErrorResponse{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
