package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/events"
)

const tenantA = "7f1c2a9e-3c54-4a47-9d43-0b8f0f0e6a11"

const validRules = `
rules:
  - name: route-urgent
    tenant_id: 7f1c2a9e-3c54-4a47-9d43-0b8f0f0e6a11
    on: task.created
    when:
      priority: urgent
    action:
      type: assign
      params:
        assignee: duty-manager
  - name: note-contacts
    tenant_id: 7f1c2a9e-3c54-4a47-9d43-0b8f0f0e6a11
    on: contact.created
    action:
      type: log
      params:
        message: new contact
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(validRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "route-urgent", rules[0].Name)
	assert.Equal(t, uuid.MustParse(tenantA), rules[0].Tenant())
	assert.Equal(t, events.TaskCreated, rules[0].On)
	assert.Equal(t, "urgent", rules[0].When["priority"])
	assert.Equal(t, ActionAssign, rules[0].Action.Type)
	assert.Equal(t, "duty-manager", rules[0].Action.Params["assignee"])
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "rules: [", "failed to parse rules"},
		{"no name", "rules:\n  - tenant_id: " + tenantA + "\n    on: task.created\n    action: {type: log}", "name is required"},
		{"bad tenant", "rules:\n  - name: r\n    tenant_id: acme\n    on: task.created\n    action: {type: log}", "tenant_id must be a UUID"},
		{"unknown event", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: invoice.paid\n    action: {type: log}", "unknown event type"},
		{"denial trigger", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: authz.access_denied\n    action: {type: log}", "cannot trigger"},
		{"unknown action", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: task.created\n    action: {type: email}", "unknown action type"},
		{"assign without assignee", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: task.created\n    action: {type: assign}", "params.assignee"},
		{"bad status", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: task.created\n    action: {type: set_status, params: {status: later}}", "params.status"},
		{"assign on contact", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: contact.created\n    action: {type: assign, params: {assignee: x}}", "only apply to live task events"},
		{"duplicate", "rules:\n  - name: r\n    tenant_id: " + tenantA + "\n    on: task.created\n    action: {type: log}\n  - name: r\n    tenant_id: " + tenantA + "\n    on: task.assigned\n    action: {type: log}", "duplicate rule name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRules), 0o600))

	rules, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read rules file")
}

func TestRuleMatches(t *testing.T) {
	rules, err := ParseRules([]byte(validRules))
	require.NoError(t, err)
	rule := rules[0]

	tid := uuid.MustParse(tenantA)
	match := events.Event{Type: events.TaskCreated, TenantID: tid, ResourceID: "x", Payload: map[string]interface{}{"priority": "urgent"}}
	assert.True(t, rule.Matches(match))

	other := match
	other.TenantID = uuid.New()
	assert.False(t, rule.Matches(other), "rules never fire for another tenant")

	low := match
	low.Payload = map[string]interface{}{"priority": "low"}
	assert.False(t, rule.Matches(low))

	wrongType := match
	wrongType.Type = events.TaskAssigned
	assert.False(t, rule.Matches(wrongType))
}
