package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// HandlerEntry is one item of controller.handlers. In YAML it is either a
// bare handler name or a mapping with a `name` key plus handler options:
//
//	handlers:
//	  - file-adder
//	  - name: mcp
//	    reflections: 2
//	    servers: [...]
//
// A malformed entry does not fail the whole config; it is recorded in Invalid
// so the handler loader can warn and skip it.
type HandlerEntry struct {
	Name    string
	Options map[string]interface{}
	Invalid error
}

// UnmarshalYAML accepts a scalar or a mapping.
func (e *HandlerEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			e.Invalid = fmt.Errorf("line %d: %w", node.Line, err)
			return nil
		}
		e.Name = strings.TrimSpace(name)
	case yaml.MappingNode:
		var raw map[string]interface{}
		if err := node.Decode(&raw); err != nil {
			e.Invalid = fmt.Errorf("line %d: %w", node.Line, err)
			return nil
		}
		if name, ok := raw["name"].(string); ok {
			e.Name = strings.TrimSpace(name)
		}
		delete(raw, "name")
		e.Options = raw
	default:
		e.Invalid = fmt.Errorf("line %d: handler entry must be a name or a mapping", node.Line)
	}
	return nil
}

// String renders the entry for warnings.
func (e HandlerEntry) String() string {
	if e.Name == "" {
		return fmt.Sprintf("<unnamed %v>", e.Options)
	}
	if len(e.Options) == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s %v", e.Name, e.Options)
}
