package service

import (
	"strings"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

const (
	tokenOpen     = "{{"
	tokenClose    = "}}"
	channelPrefix = "channel:"
	channelSuffix = ".last"
)

// TemplateContext holds the values a prompt template may reference.
type TemplateContext struct {
	Inputs   map[string]string
	Channels map[core.NodeID]string
}

// Substitute replaces {{name}} with Inputs[name] and {{channel:ID.last}} with
// Channels[ID]. Unknown names resolve to the empty string. The scan is a single
// pass: substituted values are never re-expanded.
func Substitute(template string, ctx TemplateContext) string {
	if !strings.Contains(template, tokenOpen) {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.Index(rest, tokenOpen)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(tokenOpen):], tokenClose)
		if end < 0 {
			// Unterminated token, keep the remainder verbatim.
			b.WriteString(rest)
			break
		}
		end += start + len(tokenOpen)

		b.WriteString(rest[:start])
		b.WriteString(resolveToken(rest[start+len(tokenOpen):end], ctx))
		rest = rest[end+len(tokenClose):]
	}

	return b.String()
}

func resolveToken(token string, ctx TemplateContext) string {
	token = strings.TrimSpace(token)
	if id, ok := channelRef(token); ok {
		return ctx.Channels[id]
	}
	return ctx.Inputs[token]
}

// channelRef parses "channel:ID.last" into ID.
func channelRef(token string) (core.NodeID, bool) {
	if !strings.HasPrefix(token, channelPrefix) || !strings.HasSuffix(token, channelSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(token, channelPrefix), channelSuffix)
	if id == "" {
		return "", false
	}
	return core.NodeID(id), true
}

// References lists the channel ids a template reads, in order of first use.
func References(template string) []core.NodeID {
	var refs []core.NodeID
	seen := make(map[core.NodeID]bool)

	rest := template
	for {
		start := strings.Index(rest, tokenOpen)
		if start < 0 {
			return refs
		}
		end := strings.Index(rest[start+len(tokenOpen):], tokenClose)
		if end < 0 {
			return refs
		}
		end += start + len(tokenOpen)

		token := strings.TrimSpace(rest[start+len(tokenOpen) : end])
		if id, ok := channelRef(token); ok && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
		rest = rest[end+len(tokenClose):]
	}
}
