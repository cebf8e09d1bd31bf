package domain

import "strings"

// Token is a single permission grant, e.g. "station" or "truavatar".
// Tokens are free-form and compared case-sensitively.
type Token string

// ParseTokens splits a comma-joined permission string into tokens.
// Whitespace around tokens is trimmed and empty tokens are dropped;
// order is preserved.
func ParseTokens(s string) []Token {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens = append(tokens, Token(p))
	}
	return tokens
}

// UnionTokens merges token sets into one, dropping duplicates while
// preserving first-seen order.
func UnionTokens(sets ...[]Token) []Token {
	seen := make(map[Token]struct{})
	var union []Token
	for _, set := range sets {
		for _, t := range set {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			union = append(union, t)
		}
	}
	return union
}

// JoinTokens renders tokens in the colon-separated wire form used by
// generated whitelist lines.
func JoinTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = string(t)
	}
	return strings.Join(parts, ":")
}

// HasToken reports whether tokens contains t.
func HasToken(tokens []Token, t Token) bool {
	for _, have := range tokens {
		if have == t {
			return true
		}
	}
	return false
}
