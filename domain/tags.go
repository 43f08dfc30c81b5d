package domain

import (
	"strings"

	"github.com/bytedance/sonic"
)

// DefaultTag is applied whenever an item would otherwise have no tags.
const DefaultTag = "needs-triage"

// NormalizeTags trims every tag and drops empty ones. A nil or fully empty
// input yields the single DefaultTag. Order and duplicates are preserved.
func NormalizeTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return []string{DefaultTag}
	}
	return cleaned
}

// DecodeTags parses a raw JSON tags value. Absent and null decode to nil;
// anything other than an array of strings is an InvalidInput error.
func DecodeTags(raw []byte) ([]string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	var tags []string
	if err := sonic.UnmarshalString(s, &tags); err != nil {
		return nil, invalidInput("Tags must be an array of strings", FieldError{Field: "tags", Message: "tags must be an array"})
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
