package models

// Study is the read-only study record an assessment is made against.
type Study struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	FullText string `json:"full_text,omitempty"`
	Authors  string `json:"authors,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// Detection methods.
const (
	DetectionKeyword  = "keyword"
	DetectionLLM      = "llm"
	DetectionFallback = "fallback"
)

// DesignResult is the outcome of study design detection for one study.
type DesignResult struct {
	StudyID         string   `json:"study_id,omitempty"`
	Design          string   `json:"study_design"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	RecommendedTool ToolType `json:"recommended_tool"`
	Method          string   `json:"method"`
}

// BatchDetection aggregates design detection across studies.
type BatchDetection struct {
	Total                int              `json:"total"`
	DesignDistribution   map[string]int   `json:"design_distribution"`
	ToolRecommendations  map[ToolType]int `json:"tool_recommendations"`
	SuggestedPrimaryTool ToolType         `json:"suggested_primary_tool"`
	MixedDesigns         bool             `json:"mixed_designs"`
	Results              []DesignResult   `json:"results"`
}
