package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/kiki/internal/action"
)

const actionInstructions = `When the user asks for something one of the actions below can do, reply with ONLY a
single JSON object and nothing else, in this exact shape:
{"type":"action","action":"<name>","params":{...}}
Otherwise reply in plain text. Never wrap the JSON in code fences.`

// BuildSystemPrompt combines the configured persona with the action catalog.
func BuildSystemPrompt(base string, actions []action.Descriptor) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))

	if len(actions) == 0 {
		return b.String()
	}

	b.WriteString("\n\n")
	b.WriteString(actionInstructions)
	b.WriteString("\n\nAvailable actions:\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "- %s: %s", a.Name, a.Description)
		if params := describeParams(a.Parameters); params != "" {
			fmt.Fprintf(&b, " Params: %s", params)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeParams(schema map[string]interface{}) string {
	properties, ok := schema["properties"].(map[string]interface{})
	if !ok || len(properties) == 0 {
		return ""
	}
	data, err := json.Marshal(properties)
	if err != nil {
		return ""
	}
	return string(data)
}
