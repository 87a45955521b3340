package domain

import (
	"regexp"
	"time"
)

// Comment is a user-authored note on a task. Mentions holds the resolved ids
// of users referenced with @name tokens in Content.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9][A-Za-z0-9_.-]*)`)

// MentionTokens extracts the candidate user names referenced in content.
// Tokens are deduplicated preserving first-occurrence order; resolution
// against user records is the caller's job.
func MentionTokens(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tokens = append(tokens, name)
	}
	return tokens
}
