// Package guide owns the per-session conversational state machine that
// walks a caller through a first-aid protocol one step at a time.
//
// The same core serves two entry points: Turn and Understand work against
// the server-held session table, Advance trusts caller-supplied context and
// writes it back. All session mutations happen under one mutex so a
// read-modify-write for a session is never interleaved with another.
package guide

import (
	"errors"
	"sync"

	"github.com/conrumbo/conrumbo/internal/nlp"
	"github.com/conrumbo/conrumbo/internal/protocol"
)

const (
	// MaxHistoryItems bounds the per-session utterance history (FIFO).
	MaxHistoryItems = 20

	// MaxSessions caps the session table. Crossing it evicts the whole
	// table, not individual entries. Intentional simplification: every
	// session is lost at once, there is no LRU.
	MaxSessions = 1000

	// AnonSessionID is shared by all callers that supply no session id.
	AnonSessionID = "anon"

	completionText = "Has completado el protocolo. Permanece con la víctima y espera instrucciones profesionales."
	noStepsText    = "No hay instrucciones disponibles para este protocolo."
)

// ErrProtocolNotFound reports that a resolved or requested protocol id is
// absent from the catalog.
var ErrProtocolNotFound = errors.New("protocol not found")

// HistoryEntry is one past (utterance, intent) pair of a session.
type HistoryEntry struct {
	UserText string `json:"user_text"`
	Intent   string `json:"intent"`
}

// Context is the per-session conversational state. StepIndex is the index
// of the last step already delivered; -1 means no step delivered yet.
type Context struct {
	ProtocolID string         `json:"protocol_id"`
	StepIndex  int            `json:"step_index"`
	History    []HistoryEntry `json:"history,omitempty"`
}

// Classification is the classifier outcome for one utterance.
type Classification struct {
	Intent     nlp.Intent
	Confidence float64
}

// StepResult is what a step-advance turn hands back to the caller.
// StepNumber is 1-based; it equals TotalSteps once the protocol is finished.
type StepResult struct {
	StepText   string
	StepNumber int
	TotalSteps int
	Done       bool
	Title      string
	Context    Context
}

// Engine is the session/protocol state machine over a shared in-memory
// session table.
type Engine struct {
	catalog *protocol.Catalog

	mu       sync.Mutex
	sessions map[string]Context
}

// NewEngine creates an engine over the given read-only catalog.
func NewEngine(catalog *protocol.Catalog) *Engine {
	return &Engine{
		catalog:  catalog,
		sessions: make(map[string]Context),
	}
}

// ResolveSessionID coerces an absent session id to the shared anonymous id.
func ResolveSessionID(id string) string {
	if id == "" {
		return AnonSessionID
	}
	return id
}

// Understand classifies an utterance and commits the session bookkeeping
// without delivering a step: the history gains the utterance, and a topic
// switch resets the cursor so the next delivered step is step 0.
//
// When the resolved protocol is missing from the catalog only the history
// append is committed; the previously active protocol and cursor stay.
func (e *Engine) Understand(sessionID, utterance string) (Classification, Context) {
	intent, conf := nlp.Classify(utterance)
	protocolID := protocol.ForIntent(intent)

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := e.lookup(sessionID)
	ctx.History = appendHistory(ctx.History, utterance, intent)

	if e.catalog.Has(protocolID) {
		if protocolID != ctx.ProtocolID {
			ctx.StepIndex = -1
		}
		ctx.ProtocolID = protocolID
	}

	e.commit(sessionID, ctx)
	return Classification{Intent: intent, Confidence: conf}, ctx
}

// Turn runs a full new-utterance turn: classify, update history, detect a
// topic switch, advance the cursor and deliver the next step, all in one
// critical section.
func (e *Engine) Turn(sessionID, utterance string) (Classification, StepResult, error) {
	intent, conf := nlp.Classify(utterance)
	cls := Classification{Intent: intent, Confidence: conf}
	protocolID := protocol.ForIntent(intent)

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := e.lookup(sessionID)
	ctx.History = appendHistory(ctx.History, utterance, intent)

	proto, ok := e.catalog.Get(protocolID)
	if !ok {
		// History is kept, the protocol/cursor change is not.
		e.commit(sessionID, ctx)
		return cls, StepResult{}, ErrProtocolNotFound
	}

	// Topic switch restarts at step 0, same topic advances by one.
	cursor := ctx.StepIndex + 1
	if protocolID != ctx.ProtocolID {
		cursor = 0
	}
	ctx.ProtocolID = protocolID

	result := deliverStep(proto, cursor)
	ctx.StepIndex = result.storedCursor
	e.commit(sessionID, ctx)

	result.step.Context = ctx
	return cls, result.step, nil
}

// Advance moves a session one step forward. A non-nil ctx is the caller's
// own context and wins over server memory; the committed state overwrites
// whatever the server held for the session id. With a nil ctx the
// server-held context is used, and intent resolves the protocol when the
// session has none yet.
func (e *Engine) Advance(sessionID string, ctx *Context, intent nlp.Intent) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var base Context
	if ctx != nil {
		base = *ctx
	} else {
		base = e.lookup(sessionID)
	}

	protocolID := base.ProtocolID
	if protocolID == "" {
		protocolID = protocol.ForIntent(intent)
	}

	proto, ok := e.catalog.Get(protocolID)
	if !ok {
		return StepResult{}, ErrProtocolNotFound
	}

	// Malformed or missing cursor behaves as "nothing delivered yet".
	if base.StepIndex < -1 {
		base.StepIndex = -1
	}

	result := deliverStep(proto, base.StepIndex+1)
	base.ProtocolID = protocolID
	base.StepIndex = result.storedCursor
	e.commit(sessionID, base)

	result.step.Context = base
	return result.step, nil
}

// Session returns a snapshot of the stored context for a session id.
func (e *Engine) Session(sessionID string) (Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.sessions[ResolveSessionID(sessionID)]
	return ctx, ok
}

// SessionCount returns the number of distinct sessions currently tracked.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// lookup returns the stored context for a session id, or a fresh context
// with no step delivered yet. Callers must hold e.mu.
func (e *Engine) lookup(sessionID string) Context {
	if ctx, ok := e.sessions[ResolveSessionID(sessionID)]; ok {
		return ctx
	}
	return Context{StepIndex: -1}
}

// commit stores the context and applies the capacity policy. Callers must
// hold e.mu.
func (e *Engine) commit(sessionID string, ctx Context) {
	e.sessions[ResolveSessionID(sessionID)] = ctx
	if len(e.sessions) > MaxSessions {
		e.sessions = make(map[string]Context)
	}
}

type delivered struct {
	step         StepResult
	storedCursor int
}

// deliverStep computes the step payload for a cursor that already points at
// the step to deliver. The stored cursor saturates at the last valid index
// once the protocol is finished.
func deliverStep(proto protocol.Protocol, cursor int) delivered {
	total := len(proto.Steps)

	if total == 0 {
		return delivered{
			step: StepResult{
				StepText:   noStepsText,
				StepNumber: 0,
				TotalSteps: 0,
				Done:       true,
				Title:      proto.Title,
			},
			storedCursor: -1,
		}
	}

	if cursor >= total {
		return delivered{
			step: StepResult{
				StepText:   completionText,
				StepNumber: total,
				TotalSteps: total,
				Done:       true,
				Title:      proto.Title,
			},
			storedCursor: total - 1,
		}
	}

	return delivered{
		step: StepResult{
			StepText:   proto.Steps[cursor],
			StepNumber: cursor + 1,
			TotalSteps: total,
			Done:       cursor == total-1,
			Title:      proto.Title,
		},
		storedCursor: cursor,
	}
}

// appendHistory appends a non-empty utterance and truncates to the most
// recent MaxHistoryItems entries, oldest first out.
func appendHistory(history []HistoryEntry, utterance string, intent nlp.Intent) []HistoryEntry {
	if utterance == "" {
		return history
	}
	history = append(history, HistoryEntry{UserText: utterance, Intent: string(intent)})
	if len(history) > MaxHistoryItems {
		history = history[len(history)-MaxHistoryItems:]
	}
	return history
}
