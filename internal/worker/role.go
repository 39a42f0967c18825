// Package worker implements the pipeline workers. A worker is one generic
// loop parametrized by a Role descriptor; new roles are data, not new types.
package worker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crewforge/engine/internal/domain"
)

// Role describes a worker's assignment: the state it serves, the artifact
// category it writes, the deliverables it owes, and its prompt.
type Role struct {
	Name         string   `yaml:"name"`
	State        string   `yaml:"state"`
	Category     string   `yaml:"category"`
	Deliverables []string `yaml:"deliverables"`
	SystemPrompt string   `yaml:"system_prompt"`
	Provider     string   `yaml:"provider"`
}

type rolesFile struct {
	Roles []Role `yaml:"roles"`
}

// LoadRoles reads role descriptors from a YAML file and validates them.
func LoadRoles(path string) ([]Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrRoleInvalid.Code, "read roles file", err)
	}
	return ParseRoles(data)
}

// ParseRoles parses and validates YAML role descriptors.
func ParseRoles(data []byte) ([]Role, error) {
	var rf rolesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, domain.WrapEngineError(domain.ErrRoleInvalid.Code, "parse roles YAML", err)
	}
	if len(rf.Roles) == 0 {
		return nil, domain.NewEngineError(domain.ErrRoleInvalid.Code, "roles file defines no roles")
	}

	seen := make(map[string]bool)
	for i, r := range rf.Roles {
		if r.Name == "" {
			return nil, domain.NewEngineError(domain.ErrRoleInvalid.Code,
				fmt.Sprintf("role %d has no name", i))
		}
		if seen[r.Name] {
			return nil, domain.NewEngineError(domain.ErrRoleInvalid.Code,
				fmt.Sprintf("duplicate role %q", r.Name))
		}
		seen[r.Name] = true
		if r.State == "" || r.Category == "" {
			return nil, domain.NewEngineError(domain.ErrRoleInvalid.Code,
				fmt.Sprintf("role %q needs state and category", r.Name))
		}
	}
	return rf.Roles, nil
}

// DefaultRoles returns the built-in crew matching the standard pipeline,
// used when no roles file is configured.
func DefaultRoles() []Role {
	return []Role{
		{Name: "analyst", State: "analysis", Category: "analysis",
			Deliverables: []string{"functional_spec.md", "user_stories.yaml"},
			SystemPrompt: "Requirements analyst\nProduce the functional specification and user stories for the request."},
		{Name: "architect", State: "architecture", Category: "architecture",
			Deliverables: []string{"architecture.md", "openapi.yaml", "decisions.md"},
			SystemPrompt: "System architect\nDesign the architecture, the API contract, and record the key decisions."},
		{Name: "designer", State: "design", Category: "design",
			Deliverables: []string{"design_system.md", "wireframes.md"},
			SystemPrompt: "UI/UX designer\nProduce the design system and wireframes."},
		{Name: "backend", State: "implementation", Category: "code",
			Deliverables: []string{"backend_code", "frontend_code"},
			SystemPrompt: "Implementer\nImplement the system per the architecture and design."},
		{Name: "qa", State: "testing", Category: "testing",
			Deliverables: []string{"test_plan.md", "test_results.md"},
			SystemPrompt: "QA engineer\nTest the system against the requirements and report results."},
		{Name: "cto", State: "review", Category: "review",
			Deliverables: []string{"cto_review.md"},
			SystemPrompt: "CTO reviewer\nReview architecture, security, and quality; conclude GO or NO-GO."},
	}
}
