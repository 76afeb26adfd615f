package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapResult_JSONShape(t *testing.T) {
	t.Parallel()

	r := BootstrapResult{
		Pipeline: PipelineEnvironment,
		Status:   StatusOK,
		Phases: []PhaseResult{
			{Name: "interpreter", Status: StatusOK, Detail: "3.11.9"},
		},
	}

	data, err := json.Marshal(&r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "env", got["pipeline"])
	assert.Equal(t, "ok", got["status"])
	_, hasModels := got["models"]
	assert.False(t, hasModels, "models must be omitted when empty")

	phases, ok := got["phases"].([]any)
	require.True(t, ok)
	require.Len(t, phases, 1)
	phase, ok := phases[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "interpreter", phase["name"])
	assert.Equal(t, "3.11.9", phase["detail"])
	_, hasError := phase["error"]
	assert.False(t, hasError)
}

func TestBootstrapResult_Phase(t *testing.T) {
	t.Parallel()

	r := &BootstrapResult{Phases: []PhaseResult{
		{Name: "start", Status: StatusOK},
		{Name: "pull", Status: StatusError, Error: "boom"},
	}}

	p, ok := r.Phase("pull")
	require.True(t, ok)
	assert.Equal(t, "boom", p.Error)

	_, ok = r.Phase("warmup")
	assert.False(t, ok)
}

func TestIsPipeline(t *testing.T) {
	t.Parallel()

	for _, name := range []string{PipelineEnvironment, PipelineModel, PipelineAll} {
		assert.True(t, IsPipeline(name), name)
	}
	for _, name := range []string{"", "ENV", "models", "last"} {
		assert.False(t, IsPipeline(name), name)
	}
}
