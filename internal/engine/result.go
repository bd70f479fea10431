package engine

import (
	"time"

	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/openmined/syncvault/internal/resolve"
)

// Result summarizes one sync.
type Result struct {
	Branch string `json:"branch"`
	// Head is the snapshot the workspace matches afterwards.
	Head        string `json:"head,omitempty"`
	Committed   bool   `json:"committed"`
	FastForward bool   `json:"fastForward"`
	Pushed      bool   `json:"pushed"`
	Aborted     bool   `json:"aborted"`

	Records      int `json:"records"`
	Uploaded     int `json:"uploaded"`
	Materialized int `json:"materialized"`
	Deleted      int `json:"deleted"`
	Quarantined  int `json:"quarantined"`
	KeptBoth     int `json:"keptBoth"`

	// Quarantine lists where displaced local copies were moved.
	Quarantine []string `json:"quarantine,omitempty"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Changed reports whether the sync touched the workspace or the history.
func (r *Result) Changed() bool {
	return r.Committed || r.FastForward || r.Pushed || r.Aborted ||
		r.Records > 0 || r.Materialized > 0 || r.Deleted > 0
}

func (r *Result) finish(err error) {
	r.Duration = time.Since(r.StartedAt)
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *Result) addOutcome(o *resolve.Outcome) {
	for _, res := range o.Resolutions {
		switch res.Action {
		case resolve.ActionMaterialize:
			r.Materialized++
		case resolve.ActionQuarantine:
			r.Materialized++
			r.Quarantined++
			r.Quarantine = append(r.Quarantine, res.MovedTo)
		case resolve.ActionTrash:
			r.Quarantined++
			r.Quarantine = append(r.Quarantine, res.MovedTo)
		case resolve.ActionDelete:
			r.Deleted++
		case resolve.ActionKeepBoth:
			r.KeptBoth++
		}
	}
}

func (r *Result) addReport(rep *reconcile.Report) {
	r.Materialized += len(rep.Materialized)
	r.Deleted += len(rep.Deleted)
}
