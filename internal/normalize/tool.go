package normalize

import (
	"encoding/json"
	"strings"
)

// rawInput is the generic shape a vendor tool_use input arrives in. Fields
// are read defensively since vendors disagree on naming and on which ones
// are present at all.
type rawInput map[string]interface{}

func (r rawInput) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func (r rawInput) intPtr(keys ...string) *int {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if f, ok := v.(float64); ok {
				n := int(f)
				return &n
			}
		}
	}
	return nil
}

// NormalizeTool maps a vendor tool_use call (name + raw JSON input) onto the
// shared StandardTool vocabulary. The match is case-insensitive on name;
// anything unrecognized degrades to ToolOther rather than being dropped, so
// a Session never silently loses a tool call just because it was new.
func NormalizeTool(name string, input json.RawMessage) StandardTool {
	var m rawInput
	_ = json.Unmarshal(input, &m)
	if m == nil {
		m = rawInput{}
	}

	switch strings.ToLower(name) {
	case "read", "read_file":
		start := m.intPtr("start_line", "offset")
		var end *int
		if endLine := m.intPtr("end_line"); endLine != nil {
			end = endLine
		} else if start != nil {
			if limit := m.intPtr("limit"); limit != nil {
				e := saturatingAdd(*start, *limit)
				end = &e
			}
		}
		return StandardTool{
			Kind:      ToolFileRead,
			Path:      m.str("file_path", "path", "target_file"),
			StartLine: start,
			EndLine:   end,
		}

	case "write", "write_file":
		return StandardTool{
			Kind:    ToolFileWrite,
			Path:    m.str("file_path", "path", "target_file"),
			Content: m.str("content"),
		}

	case "edit", "edit_file", "apply_diff":
		newString := m.str("new_string")
		if newString == "" {
			newString = m.str("diff")
		}
		return StandardTool{
			Kind:      ToolFileEdit,
			Path:      m.str("file_path", "path", "target_file"),
			OldString: m.str("old_string"),
			NewString: newString,
		}

	case "bash", "run_shell_command", "run_terminal_cmd", "shell":
		cwd := m.str("cwd")
		if cwd == "" {
			cwd = m.str("working_dir")
		}
		return StandardTool{
			Kind:    ToolShellExec,
			Command: m.str("command"),
			Cwd:     cwd,
		}

	case "glob", "search_files":
		return StandardTool{
			Kind:    ToolFileSearch,
			Glob:    m.str("pattern", "glob"),
			Path:    m.str("path", "target_directory"),
		}

	case "grep":
		return StandardTool{
			Kind:    ToolContentSearch,
			Pattern: m.str("pattern", "query"),
			Path:    m.str("path"),
			Glob:    m.str("glob", "include"),
		}

	default:
		return StandardTool{
			Kind:     ToolOther,
			Name:     name,
			Input:    input,
		}
	}
}

// saturatingAdd adds b to a, clamping to the max int rather than wrapping,
// mirroring the offset+limit arithmetic vendors use for bounded reads.
func saturatingAdd(a, b int) int {
	const maxInt = int(^uint(0) >> 1)
	if b > 0 && a > maxInt-b {
		return maxInt
	}
	return a + b
}
