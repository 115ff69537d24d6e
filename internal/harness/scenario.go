package harness

import (
	"bytes"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/capsule/internal/job"
)

// Scenario defines one compilation test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Namespace is passed to the compiler; empty lets it derive one.
	Namespace string `yaml:"namespace,omitempty"`

	// BaseURL is the origin of every input. Empty leaves inputs origin-less.
	BaseURL string `yaml:"base_url,omitempty"`

	// FailFast stops the pipeline after the first failing stage.
	FailFast bool `yaml:"fail_fast,omitempty"`

	// Inputs are compiled in order. The file extension selects the
	// content type.
	Inputs []Input `yaml:"inputs"`

	// Assertions validate the outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// Input is one source file of the bundle.
type Input struct {
	File    string `yaml:"file"`
	Content string `yaml:"content"`
}

// Assertion validates the compilation result.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Code is the diagnostic code (diagnostic_count).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of diagnostics (diagnostic_count).
	Count int `yaml:"count,omitempty"`

	// Output selects "js" or "css" (output_contains, output_absent).
	Output string `yaml:"output,omitempty"`

	// Text is searched for in the output (output_contains, output_absent).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertAccepted        = "accepted"
	AssertRejected        = "rejected"
	AssertDiagnosticCount = "diagnostic_count"
	AssertOutputContains  = "output_contains"
	AssertOutputAbsent    = "output_absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || !u.IsAbs() {
			return fmt.Errorf("base_url %q must be an absolute URL", s.BaseURL)
		}
	}

	if len(s.Inputs) == 0 {
		return fmt.Errorf("inputs list is required and must be non-empty")
	}
	for i, in := range s.Inputs {
		if in.File == "" {
			return fmt.Errorf("inputs[%d]: file is required", i)
		}
		if _, err := job.ParseContentType(in.File); err != nil {
			return fmt.Errorf("inputs[%d]: %w", i, err)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertAccepted, AssertRejected:
	case AssertDiagnosticCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for diagnostic_count", index)
		}
	case AssertOutputContains, AssertOutputAbsent:
		if a.Output != "js" && a.Output != "css" {
			return fmt.Errorf("assertions[%d]: output must be js or css for %s", index, a.Type)
		}
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
