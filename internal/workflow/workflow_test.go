package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerForms(t *testing.T) {
	tests := []struct {
		name   string
		on     string
		events []string
	}{
		{"scalar", "on: push", []string{"push"}},
		{"list", "on: [push, workflow_dispatch]", []string{"push", "workflow_dispatch"}},
		{"map", "on:\n  push:\n    branches: main\n  workflow_dispatch:\n", []string{"push", "workflow_dispatch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Parse([]byte(tt.on + "\njobs:\n  a:\n    steps: []\n"))
			require.NoError(t, err)
			var got []string
			for _, tr := range w.On {
				got = append(got, tr.Event)
			}
			assert.Equal(t, tt.events, got)
		})
	}
}

func TestParseTriggerFilters(t *testing.T) {
	w, err := Parse([]byte(`
on:
  push:
    branches: [main, dev]
    paths: ["**.go"]
  workflow_dispatch:
    inputs:
      reason:
        type: string
jobs:
  a:
    steps: []
`))
	require.NoError(t, err)

	push, ok := w.On.Event("push")
	require.True(t, ok)
	assert.Equal(t, []string{"main", "dev"}, push.Branches)
	assert.Equal(t, []string{"paths"}, push.Filters)

	dispatch, ok := w.On.Event("workflow_dispatch")
	require.True(t, ok)
	assert.Equal(t, []string{"reason"}, dispatch.Inputs)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte("name: x\non: push\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("on: [unclosed\n"))
	assert.Error(t, err)
}

func TestLoadStep(t *testing.T) {
	w, err := Load("testdata/python.yml")
	require.NoError(t, err)
	require.Equal(t, []string{"run-script"}, w.JobNames())

	steps := w.Jobs["run-script"].Steps
	require.Len(t, steps, 5)
	assert.Equal(t, "3.10", steps[1].With["python-version"])
	assert.Equal(t, []string{"python -m pip install --upgrade pip", "pip install -r requirements.txt"}, steps[2].Lines())
	assert.Equal(t, "Run script", steps[3].Label())
	assert.Equal(t, "actions/checkout@v3", Step{Uses: "actions/checkout@v3"}.Label())
	assert.Equal(t, "echo hi", Step{Run: "echo hi\necho bye"}.Label())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/absent.yml")
	assert.Error(t, err)
}
