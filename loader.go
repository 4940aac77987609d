package maestro

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ankala/maestro/pkg/api"
)

// YAML workflow definitions. Steps declared in YAML can only reference
// registry identifiers through `uses`; attaching Go runners directly requires
// the builder or a literal WorkflowDefinition.
//
//	id: content-pipeline
//	version: v2
//	steps:
//	  - id: fetch
//	    uses: http.fetch
//	    config:
//	      url: https://example.com/feed
//	  - id: summarize
//	    uses: llm.summarize
//	    needs: [fetch]
//	    timeout: 2m
//	    retry:
//	      max_attempts: 3
//	      initial_backoff: 500ms
//	      max_backoff: 10s

type workflowDoc struct {
	ID      string    `yaml:"id"`
	Version string    `yaml:"version"`
	Steps   []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	ID              string         `yaml:"id"`
	Uses            string         `yaml:"uses"`
	Config          map[string]any `yaml:"config"`
	Needs           []string       `yaml:"needs"`
	Timeout         string         `yaml:"timeout"`
	Retry           *retryDoc      `yaml:"retry"`
	ContinueOnError bool           `yaml:"continue_on_error"`
	Exclusive       string         `yaml:"exclusive"`
}

type retryDoc struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoff    string  `yaml:"initial_backoff"`
	MaxBackoff        string  `yaml:"max_backoff"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// ParseWorkflow decodes a YAML workflow definition.
func ParseWorkflow(data []byte) (WorkflowDefinition, error) {
	var doc workflowDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return WorkflowDefinition{}, fmt.Errorf("parse workflow: %w", err)
	}
	if doc.ID == "" {
		return WorkflowDefinition{}, fmt.Errorf("parse workflow: missing id")
	}

	def := WorkflowDefinition{
		ID:      doc.ID,
		Version: doc.Version,
		Steps:   make([]api.StepSpec, 0, len(doc.Steps)),
	}
	for i, sd := range doc.Steps {
		if sd.ID == "" {
			return WorkflowDefinition{}, fmt.Errorf("parse workflow %s: step %d has no id", doc.ID, i)
		}
		if sd.Uses == "" {
			return WorkflowDefinition{}, fmt.Errorf("parse workflow %s: step %s has no uses identifier", doc.ID, sd.ID)
		}

		spec := api.StepSpec{
			ID:              sd.ID,
			Uses:            sd.Uses,
			Config:          sd.Config,
			Needs:           sd.Needs,
			ContinueOnError: sd.ContinueOnError,
			Exclusive:       sd.Exclusive,
		}

		if sd.Timeout != "" {
			d, err := time.ParseDuration(sd.Timeout)
			if err != nil {
				return WorkflowDefinition{}, fmt.Errorf("parse workflow %s: step %s timeout: %w", doc.ID, sd.ID, err)
			}
			spec.Timeout = d
		}

		if sd.Retry != nil {
			policy, err := sd.Retry.policy()
			if err != nil {
				return WorkflowDefinition{}, fmt.Errorf("parse workflow %s: step %s retry: %w", doc.ID, sd.ID, err)
			}
			spec.Retry = policy
		}

		def.Steps = append(def.Steps, spec)
	}
	return def, nil
}

// LoadWorkflowFile reads and decodes a YAML workflow definition from disk.
func LoadWorkflowFile(path string) (WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("load workflow %s: %w", path, err)
	}
	return ParseWorkflow(data)
}

// RegisterWorkflowFile loads a YAML workflow definition and registers it
// with the engine.
func RegisterWorkflowFile(eng Engine, path string) error {
	def, err := LoadWorkflowFile(path)
	if err != nil {
		return err
	}
	return eng.RegisterWorkflow(def)
}

func (rd *retryDoc) policy() (*RetryPolicy, error) {
	p := RetryPolicy{
		MaxAttempts:       rd.MaxAttempts,
		BackoffMultiplier: rd.BackoffMultiplier,
	}
	if rd.InitialBackoff != "" {
		d, err := time.ParseDuration(rd.InitialBackoff)
		if err != nil {
			return nil, fmt.Errorf("initial_backoff: %w", err)
		}
		p.InitialBackoff = d
	}
	if rd.MaxBackoff != "" {
		d, err := time.ParseDuration(rd.MaxBackoff)
		if err != nil {
			return nil, fmt.Errorf("max_backoff: %w", err)
		}
		p.MaxBackoff = d
	}
	return &p, nil
}
