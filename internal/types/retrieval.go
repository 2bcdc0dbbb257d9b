package types

// RetrievalResult is the ephemeral per-chunk candidate produced by the
// Retrieval Engine. Never persisted.
type RetrievalResult struct {
	DocumentID      string
	ChunkID         string
	Title           string
	URL             string
	SourceKind      SourceKind
	ScoreVector     float64
	ScoreKeyword    float64
	ScoreAliasBoost float64
	Authority       float64
	Freshness       float64
	CombinedScore   float64
	TextExcerpt     string
	LastModified    string
	AliasTags       []string
	KeywordOnly     bool // set when embedding failed and this came from keyword fallback
}

// ConflictKind is the closed set of cross-source inconsistencies the
// Quality Analyzer can detect.
type ConflictKind string

const (
	ConflictMissingInfo  ConflictKind = "missing_info"
	ConflictContradictory ConflictKind = "contradictory"
	ConflictOutdated      ConflictKind = "outdated"
)

// Severity is the closed set of conflict severities.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "med"
	SeverityHigh   Severity = "high"
)

// SeverityWeight is the penalty weight used in the confidence formula.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 0.3
	case SeverityMedium:
		return 0.15
	case SeverityLow:
		return 0.05
	default:
		return 0
	}
}

// Conflict is an ephemeral detected inconsistency between retrieved
// sources for the same topic.
type Conflict struct {
	Topic      string
	Sources    []string
	Kind       ConflictKind
	Severity   Severity
	Suggestion string
}

// IntentType is the closed classification produced by the Intent Analyzer.
type IntentType string

const (
	IntentGreeting     IntentType = "greeting"
	IntentTeamInquiry  IntentType = "team_inquiry"
	IntentProcedure    IntentType = "procedure"
	IntentDiagnostic   IntentType = "diagnostic"
	IntentCodeRequest  IntentType = "code_request"
	IntentExplanation  IntentType = "explanation"
	IntentFollowup     IntentType = "followup"
	IntentOther        IntentType = "other"
)

// ConversationType is the closed classification of dialog register.
type ConversationType string

const (
	ConversationCasual        ConversationType = "casual"
	ConversationInformational ConversationType = "informational"
	ConversationTask          ConversationType = "task"
)

// ResponseFormat is the closed set of output shapes the Response Generator
// may be asked to produce.
type ResponseFormat string

const (
	FormatProse ResponseFormat = "prose"
	FormatSteps ResponseFormat = "steps"
	FormatList  ResponseFormat = "list"
	FormatCode  ResponseFormat = "code"
)

// ResponseDepth is the closed set of verbosity levels.
type ResponseDepth string

const (
	DepthBrief    ResponseDepth = "brief"
	DepthNormal   ResponseDepth = "normal"
	DepthDetailed ResponseDepth = "detailed"
)

// ResponseStyle bundles format and depth.
type ResponseStyle struct {
	Format ResponseFormat
	Depth  ResponseDepth
}

// MentionedEntities groups the entity kinds the Intent Analyzer extracts
// from the query.
type MentionedEntities struct {
	People []string
	Teams  []string
	Tools  []string
}

// IntentPlan is the ephemeral structured output of the Intent Analyzer.
type IntentPlan struct {
	IntentType           IntentType
	ConversationType     ConversationType
	NeedsRetrieval       bool
	SearchFocus          []string
	ResponseStyle        ResponseStyle
	ContextSummary       string
	MentionedEntities    MentionedEntities
	UnresolvedQuestions  []string
}

// DefaultIntentPlan is the fallback plan used when LLM-A's output fails to
// parse.
func DefaultIntentPlan() IntentPlan {
	return IntentPlan{
		IntentType:       IntentOther,
		ConversationType: ConversationInformational,
		NeedsRetrieval:   true,
		ResponseStyle:    ResponseStyle{Format: FormatProse, Depth: DepthNormal},
	}
}
