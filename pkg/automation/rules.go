// Package automation runs tenant-defined rules in response to bus events.
//
// Rules are loaded from a YAML file:
//
//	rules:
//	  - name: route-urgent-tasks
//	    tenant_id: 7f1c2a9e-3c54-4a47-9d43-0b8f0f0e6a11
//	    on: task.created
//	    when:
//	      priority: urgent
//	    action:
//	      type: assign
//	      params:
//	        assignee: duty-manager
//
// The Engine subscribes to the bus, selects the rules of the event's
// tenant, and runs every rule whose "on" and "when" match. Each rule runs
// in isolation: one failing or panicking rule is logged and the others
// still run. Actions that write go through a records.Service bound to the
// event's tenant, so a rule can never touch another tenant's data.
package automation

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/records"
)

// ActionType names what a rule does
type ActionType string

const (
	ActionAssign    ActionType = "assign"
	ActionSetStatus ActionType = "set_status"
	ActionLog       ActionType = "log"
)

var ErrInvalidRule = errors.New("invalid automation rule")

// Action is the effect of a matched rule
type Action struct {
	Type   ActionType        `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// Rule is one automation rule
type Rule struct {
	Name     string            `yaml:"name"`
	TenantID string            `yaml:"tenant_id"`
	On       events.Type       `yaml:"on"`
	When     map[string]string `yaml:"when"`
	Action   Action            `yaml:"action"`

	tenant uuid.UUID
}

// Tenant returns the parsed tenant id
func (r Rule) Tenant() uuid.UUID { return r.tenant }

// Matches reports whether evt triggers the rule
func (r Rule) Matches(evt events.Event) bool {
	if evt.Type != r.On || evt.TenantID != r.tenant {
		return false
	}
	for field, want := range r.When {
		if evt.Field(field) != want {
			return false
		}
	}
	return true
}

// File is the on-disk rule document
type File struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads and validates a rule file
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rule document
func ParseRules(data []byte) ([]Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Rules))
	for i := range f.Rules {
		if err := f.Rules[i].validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, f.Rules[i].Name, err)
		}
		key := f.Rules[i].TenantID + "/" + f.Rules[i].Name
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate rule name %q for tenant %s", ErrInvalidRule, f.Rules[i].Name, f.Rules[i].TenantID)
		}
		seen[key] = struct{}{}
	}
	return f.Rules, nil
}

func (r *Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}

	id, err := uuid.Parse(r.TenantID)
	if err != nil || id == uuid.Nil {
		return fmt.Errorf("%w: tenant_id must be a UUID", ErrInvalidRule)
	}
	r.tenant = id

	if !catalogued(r.On) {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidRule, r.On)
	}
	if r.On == events.AccessDenied {
		return fmt.Errorf("%w: rules cannot trigger on %s", ErrInvalidRule, r.On)
	}

	switch r.Action.Type {
	case ActionAssign:
		if r.Action.Params["assignee"] == "" {
			return fmt.Errorf("%w: assign requires params.assignee", ErrInvalidRule)
		}
	case ActionSetStatus:
		if !records.ValidTaskStatus(r.Action.Params["status"]) {
			return fmt.Errorf("%w: set_status requires a valid params.status", ErrInvalidRule)
		}
	case ActionLog:
		return nil
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidRule, r.Action.Type)
	}

	// writing actions act on the task named by the event
	if r.On.Resource() != string(records.KindTask) || r.On == events.TaskDeleted {
		return fmt.Errorf("%w: %s actions only apply to live task events", ErrInvalidRule, r.Action.Type)
	}
	return nil
}

func catalogued(t events.Type) bool {
	for _, c := range events.Catalogue {
		if c == t {
			return true
		}
	}
	return false
}
