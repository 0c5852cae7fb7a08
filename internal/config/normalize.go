package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeLLM()
	c.normalizeWorkflow()
	c.normalizeMetrics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = filepath.Join(c.Paths.DataDir, "cache")
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("GENERATION_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeoutSeconds
	}
	if c.Generation.RequestsPerMinute <= 0 {
		c.Generation.RequestsPerMinute = defaultGenerationRPM
	}
	if c.Generation.Burst <= 0 {
		c.Generation.Burst = defaultGenerationBurst
	}
	if c.Generation.MaxClipSeconds <= 0 {
		c.Generation.MaxClipSeconds = defaultMaxClipSeconds
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.SelectionMode = strings.ToLower(strings.TrimSpace(c.Workflow.SelectionMode))
	if c.Workflow.SelectionMode == "" {
		c.Workflow.SelectionMode = defaultSelectionMode
	}
	c.Workflow.DefaultWorkflow = strings.ToLower(strings.TrimSpace(c.Workflow.DefaultWorkflow))
	if c.Workflow.DefaultWorkflow == "" {
		c.Workflow.DefaultWorkflow = defaultWorkflowName
	}
	if len(c.Workflow.EnabledWorkflows) == 0 {
		c.Workflow.EnabledWorkflows = defaultEnabledWorkflows()
	} else {
		names := make([]string, 0, len(c.Workflow.EnabledWorkflows))
		seen := make(map[string]struct{}, len(c.Workflow.EnabledWorkflows))
		for _, name := range c.Workflow.EnabledWorkflows {
			normalized := strings.ToLower(strings.TrimSpace(name))
			if normalized == "" {
				continue
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			names = append(names, normalized)
		}
		if len(names) == 0 {
			names = defaultEnabledWorkflows()
		}
		c.Workflow.EnabledWorkflows = names
	}
	if c.Workflow.MaxConcurrency <= 0 {
		c.Workflow.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Workflow.MaxRetries < 0 {
		c.Workflow.MaxRetries = defaultMaxRetries
	}
	if c.Workflow.RetryBackoffBaseSeconds < 0 {
		c.Workflow.RetryBackoffBaseSeconds = defaultRetryBackoffBase
	}
	if c.Workflow.JobTimeoutSeconds <= 0 {
		c.Workflow.JobTimeoutSeconds = defaultJobTimeoutSeconds
	}
	if c.Workflow.SuccessRateThreshold == 0 {
		c.Workflow.SuccessRateThreshold = defaultSuccessRateThreshold
	}
	if c.Workflow.SegmentEpsilonSeconds <= 0 {
		c.Workflow.SegmentEpsilonSeconds = defaultSegmentEpsilonSeconds
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
