package mcptool

import (
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loopgate/loopgate/internal/tool"
)

// paramsFromSchema flattens an MCP input schema into the registry's ordered
// parameter list. JSON object properties carry no order, so properties are
// sorted by name to keep positional binding stable across restarts.
func paramsFromSchema(schema mcp.ToolInputSchema) []tool.Param {
	if len(schema.Properties) == 0 {
		return nil
	}

	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tool.Param, 0, len(names))
	for _, name := range names {
		p := tool.Param{Name: name, Type: tool.TypeString}
		if _, ok := required[name]; !ok {
			p.Optional = true
		}

		if prop, ok := schema.Properties[name].(map[string]any); ok {
			if typ, ok := prop["type"].(string); ok {
				p.Type = mapParamType(typ)
			}
			if desc, ok := prop["description"].(string); ok {
				p.Description = desc
			}
		}
		params = append(params, p)
	}
	return params
}

// mapParamType converts a JSON-schema type name to a registry param type.
func mapParamType(typ string) tool.ParamType {
	switch typ {
	case "number", "integer":
		return tool.TypeNumber
	case "boolean":
		return tool.TypeBoolean
	case "object":
		return tool.TypeObject
	case "array":
		return tool.TypeArray
	default:
		return tool.TypeString
	}
}

// zipArgs rebuilds the named argument map the MCP server expects from the
// registry's positional call. Missing optional arguments arrive as nil and
// are omitted.
func zipArgs(params []tool.Param, args []any) map[string]any {
	out := make(map[string]any, len(params))
	for i, p := range params {
		if i >= len(args) || args[i] == nil {
			continue
		}
		out[p.Name] = args[i]
	}
	return out
}

// resultText joins the text content blocks of a tool result.
func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
