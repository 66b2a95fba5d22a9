package flow

import (
	"encoding/json"
	"strings"
)

const toolLogLimit = 1024

// formatToolValueForLog renders tool params or results as compact JSON for logs.
func formatToolValueForLog(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unencodable: " + err.Error() + ">"
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > toolLogLimit {
		return s[:toolLogLimit] + "...(truncated)"
	}
	return s
}
