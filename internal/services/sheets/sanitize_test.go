package sheets

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeJSONRepairsControlCharacters(t *testing.T) {
	raw := []byte("{\"values\": [[\"Сбер\x01банк\", \"12\x1f3\"]]}")
	cleaned, err := sanitizeJSON(raw)
	require.NoError(t, err)

	var payload struct {
		Values [][]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	require.Equal(t, "Сбер банк", payload.Values[0][0])
}

func TestSanitizeJSONHandlesUnicodeSeparators(t *testing.T) {
	raw := []byte("{\"a\": \"x\u2028y\u2029z\"}")
	cleaned, err := sanitizeJSON(raw)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	require.Equal(t, "x y z", payload["a"])
}

func TestSanitizeJSONIgnoresStructuralWhitespace(t *testing.T) {
	var b strings.Builder
	b.WriteString("{\n  \"values\": [\n")
	for i := 0; i < maxJSONRepairs+10; i++ {
		b.WriteString("    [\"x\"],\n")
	}
	b.WriteString("    [\"y\x01z\"]\n  ]\n}")

	cleaned, err := sanitizeJSON([]byte(b.String()))
	require.NoError(t, err, "pretty-print newlines must not consume the repair budget")

	var payload struct {
		Values [][]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	require.Equal(t, "y z", payload.Values[len(payload.Values)-1][0])
}

func TestSanitizeJSONTracksEscapedQuotes(t *testing.T) {
	raw := []byte("{\"a\": \"he said \\\"hi\\\"\x01\", \"b\": 1}")
	cleaned, err := sanitizeJSON(raw)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	require.Equal(t, "he said \"hi\" ", payload["a"])
}

func TestSanitizeJSONBounded(t *testing.T) {
	raw := []byte("{\"a\": \"" + strings.Repeat("\x01", maxJSONRepairs+1) + "\"}")
	_, err := sanitizeJSON(raw)
	require.ErrorIs(t, err, ErrTooManyRepairs)
}

func TestSanitizeCell(t *testing.T) {
	require.Equal(t, "Касса", sanitizeCell("Кас\x00са\x1f"))
	require.Equal(t, "plain", sanitizeCell("plain"))
}
