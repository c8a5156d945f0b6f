package rewrite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaName identifies the structured response format on the wire.
const SchemaName = "module_description_rewrite"

// rewriteSchemaJSON is the canonical schema for the structured response:
// an object carrying exactly one string field with the rewritten HTML.
const rewriteSchemaJSON = `{
  "type": "object",
  "properties": {
    "rewritten_html": {
      "type": "string",
      "description": "Version reformulee du contenu HTML d'origine."
    }
  },
  "required": ["rewritten_html"],
  "additionalProperties": false
}`

// rewritePayload is the decoded structured response.
type rewritePayload struct {
	RewrittenHTML string `json:"rewritten_html"`
}

var rewriteSchema = jsonschema.MustCompileString("schema.json", rewriteSchemaJSON)

// schemaAsMap returns the schema decoded for SDK request parameters.
func schemaAsMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(rewriteSchemaJSON), &m); err != nil {
		panic(fmt.Sprintf("invalid rewrite schema: %v", err))
	}
	return m
}

// extractRewrittenHTML parses model output into the structured payload and
// returns the rewritten text. Any shape violation is a permanent failure:
// unparseable JSON, schema mismatch, or an empty rewritten value.
func extractRewrittenHTML(content string) (string, error) {
	raw, err := parseStructuredJSON(content)
	if err != nil {
		return "", NewPermanent("unparseable structured response", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", NewPermanent("unparseable structured response", err)
	}
	if err := rewriteSchema.Validate(doc); err != nil {
		return "", NewPermanent("structured response does not match schema", err)
	}

	var payload rewritePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", NewPermanent("structured response does not match schema", err)
	}
	rewritten := strings.TrimSpace(payload.RewrittenHTML)
	if rewritten == "" {
		return "", NewPermanent("structured response carries an empty rewritten_html", nil)
	}
	return rewritten, nil
}

// parseStructuredJSON parses JSON from model output, with lightweight
// recovery for markdown code fences and surrounding prose.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line and the closing fence if present.
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
