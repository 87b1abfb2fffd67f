package eval

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExtractText normalizes any response shape into a single string for
// substring and pattern matching. Tool servers return responses in
// several historically-coexisting shapes (raw content-block lists,
// wrapped results, structured payloads), so extraction degrades through
// an ordered decision table instead of failing. Total function: never
// panics, never errors.
func ExtractText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *mcp.CallToolResult:
		if val == nil {
			return ""
		}
		return extractCallToolResult(*val)
	case mcp.CallToolResult:
		return extractCallToolResult(val)
	case mcp.TextContent:
		return val.Text
	case *mcp.TextContent:
		if val == nil {
			return ""
		}
		return val.Text
	case []mcp.Content:
		return extractContentList(val)
	case []any:
		return extractAnyList(val)
	case map[string]any:
		return extractObject(val)
	default:
		return stringify(val)
	}
}

func extractCallToolResult(res mcp.CallToolResult) string {
	if len(res.Content) > 0 {
		return extractContentList(res.Content)
	}
	if res.StructuredContent != nil {
		if s, ok := res.StructuredContent.(string); ok {
			return s
		}
		return jsonString(res.StructuredContent)
	}
	return jsonString(res)
}

func extractContentList(content []mcp.Content) string {
	text := ""
	found := false
	for _, block := range content {
		tc, ok := block.(mcp.TextContent)
		if !ok {
			if ptc, isPtr := block.(*mcp.TextContent); isPtr && ptc != nil {
				tc, ok = *ptc, true
			}
		}
		if !ok {
			continue
		}
		if found {
			text += "\n"
		}
		text += tc.Text
		found = true
	}
	if !found {
		return jsonString(content)
	}
	return text
}

// extractAnyList handles decoded JSON arrays: elements shaped like
// {type: "text", text: string} contribute their text, joined by
// newline; anything else falls back to serializing the whole array.
func extractAnyList(list []any) string {
	text := ""
	found := false
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "text" {
			continue
		}
		s, ok := m["text"].(string)
		if !ok {
			continue
		}
		if found {
			text += "\n"
		}
		text += s
		found = true
	}
	if !found {
		return jsonString(list)
	}
	return text
}

func extractObject(m map[string]any) string {
	if content, ok := m["content"].([]any); ok {
		return extractAnyList(content)
	}
	if sc, ok := m["structuredContent"]; ok && sc != nil {
		if s, isStr := sc.(string); isStr {
			return s
		}
		return jsonString(sc)
	}
	if s, ok := m["text"].(string); ok {
		return s
	}
	return jsonString(m)
}

func jsonString(v any) string {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func stringify(v any) string {
	switch v.(type) {
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", v)
	}
	return jsonString(v)
}

// ResponseValue reduces a tool response to the value content
// expectations compare against: structured content when the server
// provided it, else the extracted text parsed as JSON when possible,
// else the extracted text itself.
func ResponseValue(resp *mcp.CallToolResult) any {
	if resp == nil {
		return nil
	}
	if resp.StructuredContent != nil {
		return resp.StructuredContent
	}

	text := ExtractText(resp)
	var decoded any
	if err := sonic.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded
	}
	return text
}
