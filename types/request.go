package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type ChunkingMethod string

const (
	MethodFixedSize ChunkingMethod = "fixed_size"
	MethodSemantic  ChunkingMethod = "semantic"
	MethodRecursive ChunkingMethod = "recursive"
)

type EnrichAction string

const (
	ActionClean     EnrichAction = "clean"
	ActionSummarize EnrichAction = "summarize"
)

func (a EnrichAction) Valid() bool {
	return a == ActionClean || a == ActionSummarize
}

const (
	DefaultChunkSize         = 500
	DefaultChunkOverlap      = 50
	DefaultSemanticThreshold = 0.5
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

type ChunkingOptions struct {
	Method            ChunkingMethod `json:"method" validate:"omitempty,oneof=fixed_size semantic recursive"`
	ChunkSize         int            `json:"chunk_size" validate:"gte=0"`
	ChunkOverlap      int            `json:"chunk_overlap" validate:"gte=0"`
	SemanticThreshold *float64       `json:"semantic_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Separators        []string       `json:"separators,omitempty"`
}

type ProcessingOptions struct {
	CleanText       bool `json:"clean_text"`
	GenerateSummary bool `json:"generate_summary"`
}

type ProcessRequest struct {
	Text              string            `json:"text" validate:"required"`
	ChunkingOptions   ChunkingOptions   `json:"chunking_options"`
	ProcessingOptions ProcessingOptions `json:"processing_options"`
}

// ApplyDefaults fills the chunking options the caller left empty.
func (r *ProcessRequest) ApplyDefaults() {
	opts := &r.ChunkingOptions
	if opts.Method == "" {
		opts.Method = MethodFixedSize
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
		if opts.ChunkOverlap == 0 {
			opts.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if opts.SemanticThreshold == nil {
		opts.SemanticThreshold = Ptr(DefaultSemanticThreshold)
	}
}

func (r *ProcessRequest) Validate() map[string]string {
	return structErrors(r)
}

type ChunkActionRequest struct {
	Chunk  Chunk        `json:"chunk"`
	Action EnrichAction `json:"action" validate:"required,oneof=clean summarize"`
}

func (r *ChunkActionRequest) Validate() map[string]string {
	return structErrors(r)
}

type ConfigParams struct {
	Url       string `db:"llm_url" json:"llm_url,omitempty" validate:"omitempty,url"`
	Model     string `db:"llm_model" json:"llm_model,omitempty"`
	PromptStr string `db:"prompt_str" json:"prompt_str,omitempty"`
}

func (params *ConfigParams) Validate() map[string]string {
	return structErrors(params)
}

func structErrors(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	errors := make(map[string]string, len(errs))
	for _, e := range errs {
		errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return errors
}
