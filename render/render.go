// Package render formats subtree reads for external consumers. Spec §4.I
// defines a subtree's external representation as a flat JSON object keyed
// by path relative to the queried prefix.
package render

import (
	"strings"

	"github.com/pathkv/pathkv/internal/store"
)

// Subtree renders entries (as returned by store.GetSubtree) into the flat
// JSON object external callers expect: keys are paths relative to prefix,
// values are the scalar payloads, both with '"' escaped.
func Subtree(entries []store.Entry, prefix string) string {
	var b strings.Builder
	b.WriteByte('{')

	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		relative := strings.TrimPrefix(e.Path, prefix)
		b.WriteByte('"')
		b.WriteString(escapeQuotes(relative))
		b.WriteString(`":"`)
		b.WriteString(escapeQuotes(e.Value))
		b.WriteByte('"')
	}

	b.WriteByte('}')
	return b.String()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
