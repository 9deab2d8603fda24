// Package proxy implements the invocation proxy family: concrete Go
// structs — not reflective dynamic proxies — that delegate to a
// rawconn.Conn/Stmt/Rows while enforcing the statement-cache protocol,
// firing hooks, collecting errors, and translating Close into "return to
// pool/cache" instead of "destroy".
package proxy

import (
	"strings"

	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
)

// Polarity selects whether Restriction.Prefixes is a whitelist or a
// blacklist.
type Polarity int

const (
	Whitelist Polarity = iota
	Blacklist
)

// Restriction is the query-restriction rule: a list of lowercase,
// single-space-separated, one- or two-word SQL prefixes evaluated by
// longest-prefix match against a trimmed, lowercased query.
type Restriction struct {
	Prefixes []string
	Polarity Polarity
}

// Check validates sql against the restriction, returning
// *errors.RestrictedQueryError on violation.
func (r *Restriction) Check(sql string) error {
	if r == nil || len(r.Prefixes) == 0 {
		return nil
	}

	normalized := strings.ToLower(strings.TrimLeft(sql, " \t\n\r"))

	best := ""
	for _, p := range r.Prefixes {
		if strings.HasPrefix(normalized, p) && len(p) > len(best) {
			best = p
		}
	}

	matched := best != ""
	switch r.Polarity {
	case Whitelist:
		if !matched {
			return &poolerrors.RestrictedQueryError{Prefix: firstWords(normalized)}
		}
	case Blacklist:
		if matched {
			return &poolerrors.RestrictedQueryError{Prefix: best}
		}
	}
	return nil
}

func firstWords(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return fields[0] + " " + fields[1]
}
