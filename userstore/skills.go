package userstore

import (
	"encoding/json"
	"fmt"
)

// EncodeSkills serializes skills for a single text column.
func EncodeSkills(skills []string) (string, error) {
	if len(skills) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("encode skills: %w", err)
	}
	return string(b), nil
}

// DecodeSkills is the inverse of EncodeSkills. An empty column decodes to nil.
func DecodeSkills(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var skills []string
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return skills, nil
}
