package economy

import "strings"

// Discord snowflakes are decimal digit strings. The length ceiling is
// generous on purpose: rejecting a valid id is worse than accepting a
// long one.
const (
	minIDLength = 10
	maxIDLength = 100
)

var injectionSubstrings = []string{
	"'", "\"", ";", "--", "/*", "*/",
	"drop table", "select ", "insert ", "delete ", "update ",
	"<script", "${", "{{",
}

// ValidateID checks that an id is a plausible Discord snowflake and
// carries no injection-shaped content.
func ValidateID(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if len(id) < minIDLength || len(id) > maxIDLength {
		return &ValidationError{Field: field, Message: "must be a Discord id"}
	}
	var lowered = strings.ToLower(id)
	for _, s := range injectionSubstrings {
		if strings.Contains(lowered, s) {
			return &ValidationError{Field: field, Message: "contains invalid characters"}
		}
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return &ValidationError{Field: field, Message: "must be numeric"}
		}
	}
	return nil
}
