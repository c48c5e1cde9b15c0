package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint computes the stable hash the recording/playback transport
// keys responses by: (model, normalised conversation, sorted tool
// catalogue, system prompt). Two requests that would produce the same
// prompt to the model must fingerprint identically regardless of map or
// slice iteration order, since the runtime never reorders anything a
// recording depends on for a replay match.
func Fingerprint(model string, conversation []Message, tools []ToolDefinition, systemPrompt string) string {
	var b strings.Builder
	b.WriteString("model=")
	b.WriteString(model)
	b.WriteString("\nsystem=")
	b.WriteString(systemPrompt)
	b.WriteString("\nconversation=")
	for _, m := range conversation {
		b.WriteString(m.Role)
		b.WriteByte(':')
		for _, c := range m.Content {
			b.WriteString(c.Type)
			b.WriteByte('|')
			b.WriteString(c.Text)
			b.WriteByte('|')
			b.WriteString(c.ToolName)
			b.WriteByte('|')
			b.WriteString(stableJSON(c.Input))
			b.WriteByte('|')
			b.WriteString(stableJSON(c.Output))
			b.WriteByte(';')
		}
		b.WriteByte('\n')
	}
	b.WriteString("tools=")
	names := make([]string, len(tools))
	byName := make(map[string]ToolDefinition, len(tools))
	for i, t := range tools {
		names[i] = t.Name
		byName[t.Name] = t
	}
	sort.Strings(names)
	for _, n := range names {
		t := byName[n]
		b.WriteString(t.Name)
		b.WriteByte('|')
		b.WriteString(t.Description)
		b.WriteByte('|')
		b.WriteString(stableJSON(t.InputSchema))
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// stableJSON renders a map deterministically by sorting keys, without
// pulling in encoding/json's map-key-sorted-but-otherwise-opaque output —
// it only needs to be stable and collision-resistant, not human-readable.
func stableJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(stableValue(m[k]))
		b.WriteByte(',')
	}
	return b.String()
}

func stableValue(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return "{" + stableJSON(t) + "}"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stableValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return "null"
	default:
		return strconv.Quote(fmt.Sprintf("%v", t))
	}
}
