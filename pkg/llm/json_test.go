package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	got, err := ExtractJSON(`{"cube":"sales","measures":["revenue"]}`)
	require.NoError(t, err)
	assert.Equal(t, `{"cube":"sales","measures":["revenue"]}`, got)
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	response := "Here is the query:\n```json\n{\"cube\": \"sales\"}\n```\nDone."
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cube":"sales"}`, got)
}

func TestExtractJSON_ThinkTags(t *testing.T) {
	response := "<think>the user wants revenue by region</think>\n{\"cube\": \"sales\"}"
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cube":"sales"}`, got)
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	response := `{"a": {"b": "c}"}, "d": [1, 2]}`
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, response, got)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I cannot answer that question.")
	require.Error(t, err)
}

func TestParseJSONResponse(t *testing.T) {
	type doc struct {
		Cube     string   `json:"cube"`
		Measures []string `json:"measures"`
	}

	got, err := ParseJSONResponse[doc]("```json\n{\"cube\":\"sales\",\"measures\":[\"revenue\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Cube)
	assert.Equal(t, []string{"revenue"}, got.Measures)

	_, err = ParseJSONResponse[doc](`{"cube": 42}`)
	require.Error(t, err)
}
