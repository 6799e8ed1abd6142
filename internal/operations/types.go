package operations

import (
	"time"

	"finsight/pkg/contracts/domain"
)

// Step identifiers
const (
	StepIDPrepare    = "prepare"
	StepIDPreprocess = "preprocess"
	StepIDFeatures   = "features"
	StepIDAugment    = "augment"
	StepIDNER        = "ner"
)

// Step names
const (
	StepNamePrepare    = "Dataset Merge"
	StepNamePreprocess = "Text Cleaning"
	StepNameFeatures   = "Linguistic Features"
	StepNameAugment    = "Data Augmentation"
	StepNameNER        = "NER Splits"
)

// FullPipeline requests every registered step in dependency order
const FullPipeline = "full_pipeline"

// Context keys for operation state
const (
	ContextKeySummaries = "summaries"
)

// Request parameters understood by the stage steps
const (
	ParamDedup       = "dedup"
	ParamKeepSource  = "keep_source"
	ParamWorkers     = "workers"
	ParamMinChars    = "min_chars"
	ParamRatio       = "ratio"
	ParamSeed        = "seed"
	ParamTopTokens   = "top_tokens"
	ParamTestSize    = "test_size"
	ParamAnnotations = "annotation_file"
)

// WebSocket event types
const (
	EventTypeOperationSnapshot = "operation:snapshot"
)

// Default timeouts
const (
	DefaultStageTimeout      = 30 * time.Minute
	DefaultPrepareTimeout    = 60 * time.Minute
	DefaultPreprocessTimeout = 30 * time.Minute
	DefaultFeaturesTimeout   = 30 * time.Minute
	DefaultAugmentTimeout    = 20 * time.Minute
	DefaultNERTimeout        = 10 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest represents a request to execute an operation. An empty
// Step or FullPipeline runs every registered step.
type OperationRequest struct {
	ID         string                 `json:"id,omitempty"`
	Step       string                 `json:"step,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// IsFullPipeline reports whether the request covers every step
func (r OperationRequest) IsFullPipeline() bool {
	return r.Step == "" || r.Step == FullPipeline
}

// OperationResponse represents the outcome of an operation
type OperationResponse struct {
	ID        string                     `json:"id"`
	Status    OperationStatusValue       `json:"status"`
	Duration  time.Duration              `json:"duration"`
	Steps     map[string]*StepState      `json:"steps"`
	Summaries []domain.ProcessingSummary `json:"summaries,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// OperationType represents an available operation type
type OperationType struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Dependencies []string              `json:"dependencies"`
	CanRunAlone  bool                  `json:"can_run_alone"`
	Parameters   []ParameterDefinition `json:"parameters"`
}

// ParameterDefinition defines a parameter for an operation type
type ParameterDefinition struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, boolean
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}
