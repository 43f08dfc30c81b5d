package domain

import (
	"regexp"
	"strings"
)

// Known collaborator identities.
const (
	// Reviewer is the human who reviews and accepts work.
	Reviewer = "kenny"
	// Worker is the default owner of new work and the fallback creator.
	Worker = "jimmy"
)

var displayNames = map[string]string{
	Reviewer: "Kenny",
	Worker:   "Jimmy",
}

// KnownUsers lists the identities that may be assigned or block an item.
func KnownUsers() []string {
	return []string{Reviewer, Worker}
}

// IsKnownUser reports whether id is an assignable identity.
func IsKnownUser(id string) bool {
	_, ok := displayNames[id]
	return ok
}

// DisplayName returns the human name for id, the id itself when unknown, or "Unknown" when empty.
func DisplayName(id string) string {
	if n, ok := displayNames[id]; ok {
		return n
	}
	if id == "" {
		return "Unknown"
	}
	return id
}

var creatorPlaceholders = map[string]struct{}{
	"":          {},
	"unknown":   {},
	"null":      {},
	"undefined": {},
}

// ResolveCreator picks the first candidate that is not empty or a placeholder left by
// buggy clients. Candidates are trimmed and lower-cased. Falls back to Worker.
func ResolveCreator(candidates ...string) string {
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if _, placeholder := creatorPlaceholders[c]; placeholder {
			continue
		}
		return c
	}
	return Worker
}

// Agent is a logical collaborator addressable through @mentions.
type Agent string

const (
	AgentPM  Agent = "pm"
	AgentDev Agent = "dev"
	AgentQA  Agent = "qa"
)

var agentAliases = map[string]Agent{
	"jimmy":  AgentPM,
	"pm":     AgentPM,
	"claude": AgentPM,
	"dev":    AgentDev,
	"codex":  AgentDev,
	"qa":     AgentQA,
	"gemini": AgentQA,
}

var mentionPattern = regexp.MustCompile(`(?i)@(jimmy|pm|claude|dev|codex|qa|gemini)\b`)

// ResolveAgent maps an alias (without the @) to its agent.
func ResolveAgent(alias string) (Agent, bool) {
	a, ok := agentAliases[strings.ToLower(alias)]
	return a, ok
}

// MentionedAgents returns each distinct agent mentioned in text, in order of first mention.
func MentionedAgents(text string) []Agent {
	var agents []Agent
	seen := make(map[Agent]struct{})
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		a, ok := ResolveAgent(m[1])
		if !ok {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		agents = append(agents, a)
	}
	return agents
}
