// internal/classifier/prompt.go
package classifier

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/signalnine/logsentry/internal/protocol"
)

const systemPrompt = `You are a web application security analyst reviewing HTTP request logs. For every log entry decide whether it is benign or malicious. Treat as malicious: injection attempts (SQL, command, LDAP, template), cross-site scripting payloads, path traversal, file inclusion, scanner and exploit probes, credential stuffing patterns and attempts to reach admin or internal endpoints with hostile payloads. Ordinary traffic is benign.

Respond with JSON only:
{"classifications": [{"classification": "benign" | "malicious", "reason": "concise reason", "logIndex": <0-based index from the batch>}]}

Return exactly one item per log entry.`

// BuildPrompt renders a batch as the user message. Indexes are batch-local.
func BuildPrompt(batch []protocol.LogEntry) string {
	var b strings.Builder
	b.WriteString("Analyze the following log entries. For each log, classify it as 'benign' or 'malicious' and provide a concise reason.\n")
	b.WriteString("Return a JSON object containing a 'classifications' array.\n")
	b.WriteString("Each object in the array must have 'classification', 'reason', and the original 'logIndex' from this batch.\n\n")
	b.WriteString("Log entries to analyze:\n")
	for i, entry := range batch {
		fmt.Fprintf(&b, "Log Index: %d\nPath: %s\nBody: %s\n---\n", i, entry.Path, entry.Body)
	}
	return b.String()
}

// responseSchema constrains the model output when strict schemas are enabled
func responseSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"classifications": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"classification": {
							Type:        jsonschema.String,
							Enum:        []string{string(protocol.Benign), string(protocol.Malicious)},
							Description: "Classification for the log entry: 'benign' or 'malicious'.",
						},
						"reason": {
							Type:        jsonschema.String,
							Description: "A concise reason for the classification.",
						},
						"logIndex": {
							Type:        jsonschema.Integer,
							Description: "The original 0-based index of the log entry from the input batch.",
						},
					},
					Required:             []string{"classification", "reason", "logIndex"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"classifications"},
		AdditionalProperties: false,
	}
}
