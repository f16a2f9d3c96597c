package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"
)

// maxLineSize bounds a single JSONL line; assistant entries carrying
// full tool results can be large.
const maxLineSize = 4 * 1024 * 1024

// readTailLines returns up to the last n lines of the file. The whole
// file is scanned but only a bounded window is retained, so memory use
// stays proportional to n.
func readTailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	ring := make([]string, 0, n)
	for scanner.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ring, err
	}
	return ring, nil
}

// historyEntry is one line of a Claude-style JSONL log. Both the
// history.jsonl format (project) and per-session files (cwd) decode
// into it.
type historyEntry struct {
	Cwd       string          `json:"cwd"`
	Project   string          `json:"project"`
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Display   string          `json:"display"`
	Message   *entryMessage   `json:"message"`
}

type entryMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *entryUsage     `json:"usage"`
}

type entryUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Content  json.RawMessage `json:"content"`
}

// projectPath returns the entry's working directory, preferring cwd
// over the history-format project field.
func (e *historyEntry) projectPath() string {
	if e.Cwd != "" {
		return e.Cwd
	}
	return e.Project
}

// parseTimestamp decodes the entry timestamp, which is either an
// RFC 3339 string or Unix milliseconds. Returns false when absent or
// malformed.
func (e *historyEntry) parseTimestamp() (time.Time, bool) {
	if len(e.Timestamp) == 0 {
		return time.Time{}, false
	}

	var s string
	if json.Unmarshal(e.Timestamp, &s) == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	var ms int64
	if json.Unmarshal(e.Timestamp, &ms) == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// toolUseCount counts tool_use blocks in an assistant entry's content
// array.
func (e *historyEntry) toolUseCount() int64 {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return 0
	}
	var blocks []contentBlock
	if json.Unmarshal(e.Message.Content, &blocks) != nil {
		return 0
	}
	var n int64
	for _, b := range blocks {
		if b.Type == "tool_use" {
			n++
		}
	}
	return n
}

// buildContent assembles the event content from the message body.
// String content is used verbatim; block arrays are rendered per block
// type and joined with blank lines; the history-format display field
// is the final fallback. The second return value is the name of the
// first tool_use block, if any.
func (e *historyEntry) buildContent() (string, string) {
	var toolName string

	if e.Message != nil && len(e.Message.Content) > 0 {
		var s string
		if json.Unmarshal(e.Message.Content, &s) == nil {
			return s, ""
		}

		var blocks []contentBlock
		if json.Unmarshal(e.Message.Content, &blocks) == nil {
			var parts []string
			for _, b := range blocks {
				switch b.Type {
				case "text":
					if b.Text != "" {
						parts = append(parts, b.Text)
					}
				case "thinking":
					if b.Thinking != "" {
						parts = append(parts, "[THINKING]\n"+b.Thinking)
					}
				case "tool_use":
					name := b.Name
					if name == "" {
						name = "unknown"
					}
					parts = append(parts, "[TOOL: "+name+"]\n"+prettyJSON(b.Input))
					if toolName == "" {
						toolName = name
					}
				case "tool_result":
					var rc string
					if json.Unmarshal(b.Content, &rc) == nil {
						parts = append(parts, "[RESULT]\n"+rc)
					}
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "\n\n"), toolName
			}
		}
	}

	return e.Display, toolName
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
