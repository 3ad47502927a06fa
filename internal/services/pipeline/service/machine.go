// Package service implements the resumable posting pipeline
package service

import (
	"fmt"
	"time"

	perr "seriate/internal/platform/errors"
	"seriate/internal/services/manifest"
	"seriate/internal/services/pipeline/domain"
)

// The pipeline core is a pure transition function: step folds one event
// into the state and returns the commands the runner must execute. All
// side effects (publish, sleep, persist, notify) live in the runner, so
// the machine is testable without collaborators.

type event interface{ isEvent() }

type evStart struct{}

type evPublishOK struct {
	Part int
	Ref  manifest.Ref
}

type evPublishErr struct {
	Part int
	Err  error
}

// evSlept reports a completed sleep; Phase says which kind finished
type evSlept struct{ Phase domain.Phase }

type evPauseReq struct{}
type evCancelReq struct{}

func (evStart) isEvent()      {}
func (evPublishOK) isEvent()  {}
func (evPublishErr) isEvent() {}
func (evSlept) isEvent()      {}
func (evPauseReq) isEvent()   {}
func (evCancelReq) isEvent()  {}

type command interface{ isCommand() }

type cmdPublish struct {
	Part    int
	Attempt int
}

type cmdSleep struct {
	Phase domain.Phase
	D     time.Duration
}

// cmdMarkPosted records a ledger ref on the manifest; parts below the
// landed one are healed to posted where their locators are known
type cmdMarkPosted struct {
	Part int
	Ref  manifest.Ref
}

type cmdNotify struct {
	Phase   domain.Phase
	Part    int
	Attempt int
	Message string
}

type cmdPersist struct{}
type cmdDeleteState struct{}

func (cmdPublish) isCommand()     {}
func (cmdSleep) isCommand()       {}
func (cmdMarkPosted) isCommand()  {}
func (cmdNotify) isCommand()      {}
func (cmdPersist) isCommand()     {}
func (cmdDeleteState) isCommand() {}

// step applies one event and returns the next state plus commands.
// The input state is never mutated; at stamps error-log entries
func step(st domain.State, m *manifest.Manifest, ev event, at time.Time, cfg Config) (domain.State, []command) {
	st = st.Clone()

	switch e := ev.(type) {
	case evStart:
		st.Cancelled = false
		st.Paused = false
		st.Status = domain.StatusInProgress
		if st.Current < 1 {
			st.Current = 1
		}
		return beginPart(st, m, at)

	case evPublishOK:
		delete(st.Attempts, e.Part)
		if e.Part == 1 {
			r := e.Ref
			st.Root = &r
		}
		st.Current = e.Part + 1
		cmds := []command{cmdMarkPosted{Part: e.Part, Ref: e.Ref}}
		if e.Part >= m.TotalParts {
			st.Status = domain.StatusCompleted
			cmds = append(cmds,
				cmdNotify{Phase: domain.PhaseSuccess, Part: e.Part, Message: fmt.Sprintf("all %d parts posted", m.TotalParts)},
				cmdDeleteState{},
			)
			return st, cmds
		}
		cmds = append(cmds,
			cmdNotify{Phase: domain.PhasePosted, Part: e.Part, Message: fmt.Sprintf("part %d/%d posted", e.Part, m.TotalParts)},
			cmdPersist{},
			cmdNotify{Phase: domain.PhaseCooldown, Part: e.Part, Message: "cooling down before next part"},
			cmdSleep{Phase: domain.PhaseCooldown, D: cfg.Cooldown},
		)
		return st, cmds

	case evPublishErr:
		attempt := st.Attempts[e.Part]
		st.Errors = append(st.Errors, domain.ErrLogEntry{
			Part:    e.Part,
			Attempt: attempt,
			Message: e.Err.Error(),
			At:      at,
		})
		switch perr.ClassifyTransport(e.Err) {
		case perr.ErrorCodeCancelled:
			st.Cancelled = true
			st.Status = domain.StatusCancelled
			return st, []command{
				cmdNotify{Phase: domain.PhaseCancelled, Part: e.Part, Attempt: attempt, Message: "cancelled during publish"},
				cmdPersist{},
			}
		case perr.ErrorCodeTransportPermanent:
			st.Status = domain.StatusFailed
			return st, []command{
				cmdNotify{Phase: domain.PhaseFailed, Part: e.Part, Attempt: attempt, Message: "permanent transport error: " + e.Err.Error()},
				cmdPersist{},
			}
		}
		// transient
		if attempt >= cfg.MaxAttempts {
			st.Paused = true
			st.Status = domain.StatusPaused
			return st, []command{
				cmdNotify{Phase: domain.PhasePaused, Part: e.Part, Attempt: attempt, Message: fmt.Sprintf("part %d paused after %d attempts", e.Part, attempt)},
				cmdPersist{},
			}
		}
		return st, []command{
			cmdNotify{Phase: domain.PhaseRetrying, Part: e.Part, Attempt: attempt, Message: "transient transport error: " + e.Err.Error()},
			cmdPersist{},
			cmdSleep{Phase: domain.PhaseRetrying, D: cfg.Backoff[attempt-1]},
		}

	case evSlept:
		// both cooldown and backoff resume at the current pointer
		return beginPart(st, m, at)

	case evPauseReq:
		st.Paused = true
		st.Status = domain.StatusPaused
		return st, []command{
			cmdNotify{Phase: domain.PhasePaused, Part: st.Current, Message: "paused by request"},
			cmdPersist{},
		}

	case evCancelReq:
		st.Cancelled = true
		st.Status = domain.StatusCancelled
		return st, []command{
			cmdNotify{Phase: domain.PhaseCancelled, Part: st.Current, Message: "cancelled by request"},
			cmdPersist{},
		}
	}
	return st, nil
}

// beginPart issues the publish for the part at the pointer, or finishes
// the run when the pointer has walked past the last part
func beginPart(st domain.State, m *manifest.Manifest, at time.Time) (domain.State, []command) {
	if st.Current > m.TotalParts {
		st.Status = domain.StatusCompleted
		return st, []command{
			cmdNotify{Phase: domain.PhaseSuccess, Message: fmt.Sprintf("all %d parts posted", m.TotalParts)},
			cmdDeleteState{},
		}
	}
	if st.Current >= 2 && rootRef(st, m) == nil {
		st.Status = domain.StatusFailed
		st.Errors = append(st.Errors, domain.ErrLogEntry{
			Part:    st.Current,
			Message: "root locator unknown, cannot thread reply",
			At:      at,
		})
		return st, []command{
			cmdNotify{Phase: domain.PhaseFailed, Part: st.Current, Message: "root locator unknown, cannot thread reply"},
			cmdPersist{},
		}
	}
	attempt := st.Attempts[st.Current] + 1
	st.Attempts[st.Current] = attempt
	return st, []command{
		cmdNotify{Phase: domain.PhasePosting, Part: st.Current, Attempt: attempt,
			Message: fmt.Sprintf("posting part %d/%d", st.Current, m.TotalParts)},
		cmdPersist{},
		cmdPublish{Part: st.Current, Attempt: attempt},
	}
}

// rootRef prefers the state cache and falls back to the manifest
func rootRef(st domain.State, m *manifest.Manifest) *manifest.Ref {
	if st.Root != nil && !st.Root.IsZero() {
		return st.Root
	}
	if m.Root != nil && !m.Root.IsZero() {
		r := *m.Root
		return &r
	}
	return nil
}
