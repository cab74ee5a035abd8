package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagList is a list of tags that decodes from either a comma-separated string
// or a list of strings. It performs no normalization of its own.
type TagList []string

// ParseTagList splits a comma-separated string into a TagList.
func ParseTagList(s string) TagList {
	if strings.TrimSpace(s) == "" {
		return TagList{}
	}
	return TagList(strings.Split(s, ","))
}

// String joins the tags with commas, the flat persisted form.
func (t TagList) String() string {
	return strings.Join(t, ",")
}

// UnmarshalJSON accepts "a, b" as well as ["a", "b"].
func (t *TagList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = ParseTagList(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("tags: expected string or list of strings: %w", err)
	}
	*t = TagList(list)
	return nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (t *TagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = ParseTagList(node.Value)
		return nil
	case yaml.SequenceNode:
		list := make(TagList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("tags: line %d: expected scalar tag", item.Line)
			}
			list = append(list, item.Value)
		}
		*t = list
		return nil
	default:
		return fmt.Errorf("tags: line %d: expected string or list of strings", node.Line)
	}
}
