package envelope

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{name: "nil", payload: nil, want: ""},
		{name: "plain_string", payload: "  hello there  ", want: "hello there"},
		{name: "json_string_message", payload: `{"message":"hi"}`, want: "hi"},
		{name: "json_string_array", payload: `["first","second"]`, want: "first"},
		{name: "braces_but_not_json", payload: `{not json: at all`, want: "{not json: at all"},
		{name: "brace_without_quote_or_colon", payload: "{}", want: "{}"},
		{
			name:    "object_message_wins",
			payload: map[string]any{"message": "msg", "result": "res"},
			want:    "msg",
		},
		{
			name:    "object_result_second",
			payload: map[string]any{"result": "res", "other": "x"},
			want:    "res",
		},
		{
			name:    "nested_encrypted_recursed",
			payload: map[string]any{"encrypted": `{"message":"inner"}`},
			want:    "inner",
		},
		{
			name:    "first_string_field_sorted",
			payload: map[string]any{"zeta": "late", "alpha": "early", "count": 3.0},
			want:    "early",
		},
		{
			name:    "object_without_strings_stringified",
			payload: map[string]any{"n": 1.0},
			want:    `{"n":1}`,
		},
		{name: "number", payload: 5.0, want: "5"},
		{name: "bool", payload: true, want: "true"},
		{name: "raw_message", payload: json.RawMessage(`{"result":"raw"}`), want: "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.payload))
		})
	}
}

// Round-trip property: a message field always survives JSON encoding.
func TestExtractTextRoundTrip(t *testing.T) {
	for _, s := range []string{"hello", "  padded  ", "multi\nline", "ünïcödé"} {
		encoded, err := json.Marshal(map[string]string{"message": s})
		require.NoError(t, err)
		assert.Equal(t, s, ExtractText(string(encoded)))
	}
}

func TestExtractMeta(t *testing.T) {
	var payload any
	err := json.Unmarshal([]byte(`{"message":"hi","history_used":true,"history_len":6}`), &payload)
	require.NoError(t, err)

	meta := ExtractMeta(payload)
	require.NotNil(t, meta.HistoryUsed)
	assert.True(t, *meta.HistoryUsed)
	assert.Equal(t, 6, meta.HistoryLen)
}

func TestExtractMetaAbsent(t *testing.T) {
	meta := ExtractMeta(map[string]any{"message": "hi"})
	assert.Nil(t, meta.HistoryUsed)
	assert.Equal(t, 0, meta.HistoryLen)

	assert.Equal(t, ReplyMeta{}, ExtractMeta("not an object"))
}

func TestWithLookupResults(t *testing.T) {
	rows := []map[string]any{{"name": "widget"}}
	message, err := WithLookupResults(rows, ">find widgets")
	require.NoError(t, err)

	assert.Equal(t, "[DB_RESULTS:[{\"name\":\"widget\"}]]\n>find widgets", message)
}

func TestWithLookupResultsUnencodable(t *testing.T) {
	_, err := WithLookupResults(func() {}, "text")
	assert.Error(t, err)
}

func TestEncryptedOmitsEmptyIV(t *testing.T) {
	encoded, err := json.Marshal(Encrypted{Encrypted: "abc"})
	require.NoError(t, err)
	assert.Equal(t, `{"encrypted":"abc"}`, string(encoded))

	encoded, err = json.Marshal(Encrypted{Encrypted: "abc", IV: "def"})
	require.NoError(t, err)
	assert.Equal(t, `{"encrypted":"abc","iv":"def"}`, string(encoded))
}

func ExampleExtractText() {
	fmt.Println(ExtractText(`{"message":"hi there"}`))
	// Output: hi there
}
