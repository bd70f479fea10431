package resolve

import (
	"context"
	"errors"

	"github.com/openmined/syncvault/internal/snapshot"
)

// ErrAborted ends a resolution at the user's request. Nothing decided so
// far may be committed.
var ErrAborted = errors.New("sync aborted by user")

type Decision int

const (
	KeepLocal Decision = iota
	KeepRemote
	// KeepBoth keeps the local file and writes the remote version beside it
	// under a conflict name.
	KeepBoth
	Abort
)

func (d Decision) String() string {
	switch d {
	case KeepLocal:
		return "keep-local"
	case KeepRemote:
		return "keep-remote"
	case KeepBoth:
		return "keep-both"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Strategy picks the decision for one record.
type Strategy interface {
	Decide(ctx context.Context, rec snapshot.ChangeRecord) (Decision, error)
}

// Auto is the non-interactive policy: remote wins wherever it moved away
// from the ancestor, local stands everywhere else.
type Auto struct{}

func (Auto) Decide(_ context.Context, rec snapshot.ChangeRecord) (Decision, error) {
	return autoDecision(rec), nil
}

func autoDecision(rec snapshot.ChangeRecord) Decision {
	switch {
	case rec.Kind == snapshot.LocalAdd:
		return KeepLocal
	case rec.Kind == snapshot.LocalDelete:
		return KeepRemote
	case !rec.RemoteChanged():
		return KeepLocal
	default:
		return KeepRemote
	}
}

// Prompter asks the user about a conflicting record.
type Prompter interface {
	Prompt(ctx context.Context, rec snapshot.ChangeRecord) (Decision, error)
}

type PromptFunc func(ctx context.Context, rec snapshot.ChangeRecord) (Decision, error)

func (f PromptFunc) Prompt(ctx context.Context, rec snapshot.ChangeRecord) (Decision, error) {
	return f(ctx, rec)
}

// Interactive consults the prompter for records where both sides changed
// and applies the automatic policy to the rest.
type Interactive struct {
	Prompter Prompter
}

func NewInteractive(p Prompter) *Interactive {
	return &Interactive{Prompter: p}
}

func (s *Interactive) Decide(ctx context.Context, rec snapshot.ChangeRecord) (Decision, error) {
	if !rec.IsConflict() || s.Prompter == nil {
		return autoDecision(rec), nil
	}
	return s.Prompter.Prompt(ctx, rec)
}
