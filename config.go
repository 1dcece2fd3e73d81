package pipebus

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the per-pipeline slice of the bus configuration surface,
// as produced by an external pipeline-definition loader. A pipeline may carry
// an address binding (its input side), a send_to list (its output side) or
// both.
type PipelineConfig struct {
	// ID identifies the pipeline; used as the origin on outgoing events.
	ID string `yaml:"id"`
	// Address is the virtual address this pipeline receives on. Optional.
	Address string `yaml:"address"`
	// Capacity bounds the intake buffer; 0 uses the bus default.
	Capacity int `yaml:"capacity"`
	// SendTo lists destination addresses, delivered to in order. Optional.
	SendTo []string `yaml:"send_to"`
	// EnsureDelivery selects the delivery-guarantee mode (default true).
	EnsureDelivery *bool `yaml:"ensure_delivery"`
}

// Ensure reports the effective delivery-guarantee mode.
func (c PipelineConfig) Ensure() bool {
	return c.EnsureDelivery == nil || *c.EnsureDelivery
}

type pipelinesDoc struct {
	Pipelines []PipelineConfig `yaml:"pipelines"`
}

// ParsePipelines parses a YAML pipeline-definition document:
//
//	pipelines:
//	  - id: ingest
//	    send_to: [es, http]
//	    ensure_delivery: false
//	  - id: es
//	    address: es
//	    capacity: 64
//
// Validation fails fast on missing ids, empty address/send_to entries and
// addresses claimed by more than one pipeline in the same document.
func ParsePipelines(data []byte) ([]PipelineConfig, error) {
	var doc pipelinesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pipebus: invalid pipeline config: %w", err)
	}

	seen := make(map[string]string, len(doc.Pipelines))
	for i, p := range doc.Pipelines {
		if p.ID == "" {
			return nil, fmt.Errorf("pipebus: pipeline %d: id is required", i)
		}
		if p.Address == "" && len(p.SendTo) == 0 {
			return nil, fmt.Errorf("pipebus: pipeline %q: needs an address or a send_to list", p.ID)
		}
		if p.Address != "" {
			if prev, ok := seen[p.Address]; ok {
				return nil, fmt.Errorf("pipebus: address %q claimed by both %q and %q", p.Address, prev, p.ID)
			}
			seen[p.Address] = p.ID
		}
		for _, d := range p.SendTo {
			if d == "" {
				return nil, fmt.Errorf("pipebus: pipeline %q: empty send_to entry", p.ID)
			}
		}
	}
	return doc.Pipelines, nil
}

// OpenInputFromConfig binds the configured address for the pipeline.
func (b *Bus) OpenInputFromConfig(cfg PipelineConfig) (*Input, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	return b.OpenInput(cfg.Address, cfg.Capacity)
}

// NewOutputFromConfig creates the configured output for the pipeline.
func (b *Bus) NewOutputFromConfig(cfg PipelineConfig, opts ...OutputOption) (*Output, error) {
	return b.NewOutput(cfg.ID, cfg.SendTo, cfg.Ensure(), opts...)
}
