package types

import "context"

// EventType is one state in the Streaming Orchestrator's state machine.
// Each is handled by exactly one registered pipeline plugin.
type EventType string

const (
	AnalyzeIntent   EventType = "analyze_intent"
	LoadHistory     EventType = "load_history"
	ExpandQuery     EventType = "expand_query"
	Retrieve        EventType = "retrieve"
	AnalyzeQuality  EventType = "analyze_quality"
	BuildContext    EventType = "build_context"
	Generate        EventType = "generate"
	Review          EventType = "review"
	Regenerate      EventType = "regenerate"
	Persist         EventType = "persist"
)

// Modes is the named sequence of stages run for each named part of the
// request, split across the runtime DECIDE branch point of the state
// machine:
//
//	START → Prefix → DECIDE(intent.needs_retrieval) → RAGSuffix | DirectSuffix → END
//
// "load_history" and "analyze_intent" are two separate one-event modes,
// run concurrently by the Orchestrator via errgroup: both goroutines start
// at once, and AnalyzeIntent blocks only on RequestState.HistoryReady,
// the one field it actually needs (the trimmed conversation summary built
// from history), rather than the whole LoadHistory stage being ordered
// ahead of it in a single sequential mode. Once both finish, the
// Orchestrator inspects state.Intent.NeedsRetrieval and runs whichever
// suffix applies; a single static mode table can't express a decision
// based on a value computed mid-pipeline.
var Modes = map[string][]EventType{
	"load_history": {
		LoadHistory,
	},
	"analyze_intent": {
		AnalyzeIntent,
	},
	"direct_suffix": {
		BuildContext,
		Generate,
		Review,
		Persist,
	},
	"rag_suffix": {
		ExpandQuery,
		Retrieve,
		AnalyzeQuality,
		BuildContext,
		Generate,
		Review,
		Persist,
	},
}

// RequestState is the single mutable object threaded through the pipeline
// for one /answer call: every plugin reads fields earlier stages filled
// in and writes the fields it owns.
type RequestState struct {
	RequestID      string
	UserID         string
	ConversationID string
	Query          string
	AuthorsNote    string

	Conversation *Conversation
	History      []*Message

	Intent         IntentPlan
	IntentFallback bool // true if LLM-A output failed to parse

	ExpandedQueries []string
	AliasExpansions []string

	KeywordOnly bool // true if embedding failed and retrieval fell back

	RetrievalResults []*RetrievalResult
	Conflicts        []*Conflict

	ContextSummary string
	SystemPrompt   string
	UserContent    string

	ResponseText      string
	PromptTokens      int
	CompletionTokens  int
	NeedsRevision     bool
	RevisionRequested bool
	Regenerated       bool

	PreConfidence  float64
	PostConfidence float64

	MessageID string

	// HistoryReady is closed by HistoryPlugin once state.Conversation and
	// state.History are populated (success or failure). IntentPlugin's
	// concurrently-running goroutine waits on it before building the
	// conversation summary it feeds to LLM-A, so the two stages genuinely
	// run concurrently rather than being serialized by mode order. Left
	// nil in tests that call a plugin's OnEvent directly without going
	// through the Orchestrator's concurrent fan-out.
	HistoryReady chan struct{}

	// Sink is the orchestrator's frame broadcaster. Defined as the narrow
	// FrameSink interface (not the concrete orchestrator.Sink type) so
	// pipeline plugins never need to import the orchestrator package.
	Sink FrameSink

	Seq int
}

// FrameSink is the narrow capability pipeline plugins need to stream a
// frame to the client; orchestrator.Sink implements it.
type FrameSink interface {
	Emit(frame []byte)
}

// PluginError carries the event a plugin failed at and the underlying
// cause.
type PluginError struct {
	Event EventType
	Err   error
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Event) + ": " + e.Err.Error()
}

func (e *PluginError) Unwrap() error { return e.Err }

// WithError wraps err as a PluginError for the given event.
func (et EventType) WithError(err error) *PluginError {
	if err == nil {
		return nil
	}
	return &PluginError{Event: et, Err: err}
}

// Next is the chain-of-responsibility continuation signature shared by
// every plugin's OnEvent method.
type Next func() *PluginError

// Plugin is one pipeline stage. ActivationEvents declares which EventTypes
// it handles; OnEvent runs the stage and calls next() to continue the
// chain.
type Plugin interface {
	ActivationEvents() []EventType
	OnEvent(ctx context.Context, event EventType, state *RequestState, next Next) *PluginError
}
