package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Topic: {{.Topic | upper}} ({{join \", \" .Names}})", map[string]any{
		"Topic": "ai",
		"Names": []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Topic: AI (a, b)", out)

	out, err = RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	_, err = RenderTemplate("{{.Broken", nil)
	require.Error(t, err)
}

func TestRenderTemplate_Truncate(t *testing.T) {
	out := MustRender(`{{truncate 3 .S}}`, map[string]any{"S": "abcdef"})
	assert.Equal(t, "abc...", out)
}

type schemaSample struct {
	A string  `json:"a" description:"Field A"`
	B *int    `json:"b"`
	C int     `json:"c,omitempty"`
	D float64 `json:"d,omitempty"`
}

func TestCreateSchemaAndValidate(t *testing.T) {
	schema := CreateSchema(schemaSample{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Equal(t, []string{"a"}, schema["required"])

	require.NoError(t, ValidateParameters(map[string]any{"a": "x", "c": float64(2)}, schema))

	err := ValidateParameters(map[string]any{"c": 1}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "a", verr.Field)

	err = ValidateParameters(map[string]any{"a": 1}, schema)
	require.ErrorAs(t, err, &verr)

	err = ValidateParameters(map[string]any{"a": "x", "c": 1.5}, schema)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "c", verr.Field)
}
