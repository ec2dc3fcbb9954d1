package normalize

import (
	"encoding/json"
	"regexp"
)

// lineNumberPrefix matches a leading line-number marker ("12|" or "12→")
// that some vendors prepend to each line of file content returned from a
// read tool, optionally preceded by whitespace.
var lineNumberPrefix = regexp.MustCompile(`(?m)^[ \t]*\d+[|\x{2192}][ \t]?`)

// systemReminderTag matches an injected <system-reminder>...</system-reminder>
// block, including multi-line bodies.
var systemReminderTag = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

// stripSystemReminders removes injected system-reminder tags from tool
// content. Applied before stripLineNumberPrefix: a reminder block can
// itself contain lines that look like "12| ..." noise, and stripping it
// whole first avoids leaving stray prefix fragments behind once the tag is
// gone.
func stripSystemReminders(s string) string {
	return systemReminderTag.ReplaceAllString(s, "")
}

// stripLineNumberPrefix removes a per-line "N|" or "N→" marker.
func stripLineNumberPrefix(s string) string {
	return lineNumberPrefix.ReplaceAllString(s, "")
}

// cleanToolResultText applies both cleanup passes in the order the gateway
// expects content to reach storage: reminders out first, then line-number
// markers, so a reminder block never leaves a dangling marker behind.
func cleanToolResultText(s string) string {
	return stripLineNumberPrefix(stripSystemReminders(s))
}

// parseToolUseResult converts a vendor's toolUseResult payload (attached
// out-of-band to a tool_result content block) into a ToolResultData. A
// "file" sub-object is mapped onto file_read; anything else non-empty
// degrades to ResultOther rather than being dropped.
func parseToolUseResult(raw json.RawMessage) *ToolResultData {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}

	if fileVal, ok := m["file"]; ok {
		if fileMap, ok := fileVal.(map[string]interface{}); ok {
			path, _ := fileMap["filePath"].(string)
			if path == "" {
				path, _ = fileMap["path"].(string)
			}
			content, _ := fileMap["content"].(string)
			return &ToolResultData{
				Kind:    ResultFileRead,
				Path:    path,
				Content: cleanToolResultText(content),
			}
		}
	}

	return &ToolResultData{Kind: ResultOther, Value: raw}
}
