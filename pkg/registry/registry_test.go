package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	for _, taskType := range []string{
		"validate-lead-intake", "submit-lead", "create-affiliate",
		"transition-lead-status", "apply-commission", "compute-lead-stats",
	} {
		_, ok := reg.Find(taskType)
		assert.True(t, ok, taskType)
	}
}

func TestDefault_IntakeFieldOrderCoversRequired(t *testing.T) {
	a, ok := MustDefault().Find("validate-lead-intake")
	require.True(t, ok)

	order := map[string]bool{}
	for _, f := range a.FieldOrder {
		order[f] = true
	}
	for _, req := range a.InputSchema["required"].([]interface{}) {
		assert.True(t, order[req.(string)], "required field %v not in fieldOrder", req)
	}
}

func TestActivity_TimeoutDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Activity{Timeout: "2s"}.TimeoutDuration(time.Minute))
	assert.Equal(t, time.Minute, Activity{Timeout: "soon"}.TimeoutDuration(time.Minute))
	assert.Equal(t, time.Minute, Activity{}.TimeoutDuration(time.Minute))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		reg  ActivityRegistry
	}{
		{"empty", ActivityRegistry{}},
		{"duplicate id", ActivityRegistry{Activities: []Activity{
			{ID: "a", TaskType: "a", DisplayName: "A", Category: "c"},
			{ID: "a", TaskType: "a", DisplayName: "A", Category: "c"},
		}}},
		{"missing task type", ActivityRegistry{Activities: []Activity{{ID: "a", DisplayName: "A", Category: "c"}}}},
		{"bad schema", ActivityRegistry{Activities: []Activity{{
			ID: "a", TaskType: "a", DisplayName: "A", Category: "c",
			InputSchema: map[string]interface{}{"type": 12},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.reg.Validate())
		})
	}
}

func TestLoadRegistry_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, embedded, 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, len(MustDefault().Activities), len(reg.Activities))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}
