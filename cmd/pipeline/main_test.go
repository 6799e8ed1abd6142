package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var params paramFlag
	fs.Var(&params, "param", "")

	require.NoError(t, fs.Parse([]string{
		"-param", "min_chars=10",
		"-param", "dedup=false",
		"-param", "annotation_file=data/ann.jsonl",
		"-param", "seed = 1",
	}))

	assert.Equal(t, map[string]interface{}{
		"min_chars":       10.0,
		"dedup":           false,
		"annotation_file": "data/ann.jsonl",
		"seed":            1.0,
	}, params.values())
}

func TestParamFlag_Invalid(t *testing.T) {
	var params paramFlag
	assert.Error(t, params.Set("no-equals"))
	assert.Error(t, params.Set("=value"))
	assert.Nil(t, params.values())
}
