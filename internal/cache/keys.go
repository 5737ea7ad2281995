package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/zatekoja/shopdiscovery/pkg/utils"
)

const anonymousScope = "_"

// Key derives a deterministic cache key. Parts are normalized (case-folded,
// whitespace-collapsed), length-prefixed and hashed, so logically equal
// requests always share a key. The scope, typically a user id, is
// query-escaped but stays readable so a whole scope can be invalidated with
// ScopePattern.
func Key(namespace, scope string, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		part = utils.NormalizeText(part)
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return namespace + ":" + escapeScope(scope) + ":" + hex.EncodeToString(h.Sum(nil))
}

// ScopePattern matches every key Key produces for the namespace and scope,
// and nothing else.
func ScopePattern(namespace, scope string) string {
	return namespace + ":" + escapeScope(scope) + ":*"
}

// escapeScope keeps ':' and glob metacharacters out of the scope segment.
func escapeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return anonymousScope
	}
	return url.QueryEscape(scope)
}
