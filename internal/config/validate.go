package config

import (
	"errors"
	"fmt"
	"strings"
)

var validSelectionModes = map[string]struct{}{
	"config_default":       {},
	"llm_intelligent":      {},
	"always_interpolation": {},
	"always_ingredients":   {},
}

var validWorkflowNames = map[string]struct{}{
	"interpolation":  {},
	"ingredients":    {},
	"timestamp":      {},
	"image_to_video": {},
	"text_to_video":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.CacheMaxGiB < 0 {
		return errors.New("paths.cache_max_gib must be zero or positive")
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if strings.TrimSpace(c.Generation.BaseURL) == "" {
		return errors.New("generation.base_url must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"generation.timeout_seconds":     c.Generation.TimeoutSeconds,
		"generation.requests_per_minute": c.Generation.RequestsPerMinute,
		"generation.burst":               c.Generation.Burst,
		"generation.max_clip_seconds":    c.Generation.MaxClipSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if _, ok := validSelectionModes[c.Workflow.SelectionMode]; !ok {
		return fmt.Errorf("workflow.selection_mode %q is not one of config_default, llm_intelligent, always_interpolation, always_ingredients", c.Workflow.SelectionMode)
	}
	if _, ok := validWorkflowNames[c.Workflow.DefaultWorkflow]; !ok {
		return fmt.Errorf("workflow.default_workflow %q is not a known workflow", c.Workflow.DefaultWorkflow)
	}
	enabled := make(map[string]struct{}, len(c.Workflow.EnabledWorkflows))
	for _, name := range c.Workflow.EnabledWorkflows {
		if _, ok := validWorkflowNames[name]; !ok {
			return fmt.Errorf("workflow.enabled_workflows entry %q is not a known workflow", name)
		}
		enabled[name] = struct{}{}
	}
	if _, ok := enabled[c.Workflow.DefaultWorkflow]; !ok {
		return fmt.Errorf("workflow.default_workflow %q must appear in workflow.enabled_workflows", c.Workflow.DefaultWorkflow)
	}
	// text_to_video is the universal fallback; a config without it can leave
	// scenes with no schedulable strategy.
	if _, ok := enabled["text_to_video"]; !ok {
		return errors.New("workflow.enabled_workflows must include text_to_video")
	}
	if err := ensurePositiveMap(map[string]int{
		"workflow.max_concurrency":     c.Workflow.MaxConcurrency,
		"workflow.job_timeout_seconds": c.Workflow.JobTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow.max_retries must be zero or positive")
	}
	if c.Workflow.RetryBackoffBaseSeconds < 0 {
		return errors.New("workflow.retry_backoff_base_seconds must be zero or positive")
	}
	if c.Workflow.SuccessRateThreshold < 0 || c.Workflow.SuccessRateThreshold > 1 {
		return errors.New("workflow.success_rate_threshold must be between 0 and 1")
	}
	if c.Workflow.SegmentEpsilonSeconds <= 0 {
		return errors.New("workflow.segment_epsilon_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.Workflow.SelectionMode != "llm_intelligent" {
		return nil
	}
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reelforge/config.toml"
		}
		return fmt.Errorf("llm.api_key is required when workflow.selection_mode is llm_intelligent. Set LLM_API_KEY env var or edit %s (create with 'reelforge config init')", defaultPath)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set when workflow.selection_mode is llm_intelligent")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
