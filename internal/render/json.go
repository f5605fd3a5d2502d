package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"
)

var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// PrettyJSON indents raw with two spaces. Invalid JSON is returned as is.
func PrettyJSON(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if !json.Valid(trimmed) {
		return string(trimmed)
	}
	return string(bytes.TrimRight(pretty.PrettyOptions(trimmed, prettyOptions), "\n"))
}

// ColorJSON is PrettyJSON with ANSI syntax highlighting.
func ColorJSON(raw []byte) string {
	indented := PrettyJSON(raw)
	if !json.Valid([]byte(indented)) {
		return indented
	}
	return string(pretty.Color([]byte(indented), nil))
}

// YAML converts a JSON document to block-style YAML, keeping key order.
func YAML(raw []byte) (string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return "", fmt.Errorf("failed to parse context: %w", err)
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return "", fmt.Errorf("failed to encode context as yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode context as yaml: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// blockStyle clears the flow style inherited from JSON syntax and drops
// quoting that YAML does not need.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, child := range n.Content {
		blockStyle(child)
	}
}
