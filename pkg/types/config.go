package types

import "time"

// HTTPConfig holds shared HTTP settings for components that call the
// external service boundaries.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-agent/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchServiceConfig holds settings for the external search/scrape service.
type SearchServiceConfig struct {
	HTTPConfig `yaml:",inline"`

	// Endpoint is the search service base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey authenticates requests, if the deployment requires one.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxResults is the default result cap per query (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// InferenceConfig holds settings for the external inference service.
type InferenceConfig struct {
	HTTPConfig `yaml:",inline"`

	// Endpoint is the inference service base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Model is the model identifier requested from the service.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the inference API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExecutorConfig holds settings for the parallel task executor.
type ExecutorConfig struct {
	// MaxConcurrency bounds simultaneously running tasks (default 5,
	// clamped to [1,20]).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// DefaultTimeout is the per-task timeout when a caller sets none.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`

	// DefaultRetries is the retry count when a caller sets none.
	DefaultRetries int `json:"default_retries" yaml:"default_retries"`
}

// MemoryConfig holds settings for the learning memory store.
type MemoryConfig struct {
	// Dir is the directory holding the memory database.
	Dir string `json:"dir" yaml:"dir"`

	// WindowSize bounds the number of retained outcomes (default 200).
	WindowSize int `json:"window_size" yaml:"window_size"`

	// MinDomainSamples is the sample floor before a domain is recommended
	// for or against (default 3).
	MinDomainSamples int `json:"min_domain_samples" yaml:"min_domain_samples"`
}

// ValidationConfig holds settings for cross-reference validation.
type ValidationConfig struct {
	// FuzzyThreshold is the minimum normalized similarity for two strings
	// to cluster together (default 0.85).
	FuzzyThreshold float64 `json:"fuzzy_threshold" yaml:"fuzzy_threshold"`

	// Tolerances maps field names to their allowed numeric variance in
	// percent. Fields not listed use DefaultTolerance.
	Tolerances map[string]float64 `json:"tolerances,omitempty" yaml:"tolerances,omitempty"`

	// DefaultTolerance is the allowed numeric variance in percent for
	// fields without a specific entry (default 5).
	DefaultTolerance float64 `json:"default_tolerance" yaml:"default_tolerance"`
}

// CriticConfig holds settings for claim verification.
type CriticConfig struct {
	// TopSources is the number of authority-ranked sources checked per
	// claim (default 3).
	TopSources int `json:"top_sources" yaml:"top_sources"`

	// CacheSize bounds the verdict cache (default 256).
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// ReportConfig holds settings for report output.
type ReportConfig struct {
	// OutputDir is the directory reports are written to.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// AgentConfig groups all component configurations for one agent.
type AgentConfig struct {
	Search     SearchServiceConfig `json:"search" yaml:"search"`
	Inference  InferenceConfig     `json:"inference" yaml:"inference"`
	Executor   ExecutorConfig      `json:"executor" yaml:"executor"`
	Memory     MemoryConfig        `json:"memory" yaml:"memory"`
	Validation ValidationConfig    `json:"validation" yaml:"validation"`
	Critic     CriticConfig        `json:"critic" yaml:"critic"`
	Report     ReportConfig        `json:"report" yaml:"report"`
}
