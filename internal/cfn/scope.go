package cfn

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const maxLogicalIDLength = 255

// Scope is the hierarchical path of a component, e.g.
// "portfolio-website-infra/Beta/LoadBalancer". Constructors receive the
// scope of their parent and derive names from it instead of relying on an
// ambient construct tree.
type Scope struct {
	path []string
}

func NewScope(id string) Scope {
	return Scope{path: []string{id}}
}

func (s Scope) Child(id string) Scope {
	path := make([]string, len(s.path), len(s.path)+1)
	copy(path, s.path)
	return Scope{path: append(path, id)}
}

func (s Scope) Path() string {
	return strings.Join(s.path, "/")
}

func (s Scope) ID() string {
	if len(s.path) == 0 {
		return ""
	}
	return s.path[len(s.path)-1]
}

// LogicalID derives a CloudFormation logical id from the scope path. The
// root segment is left out since every id lives in that root's template. A
// short hash of the full path keeps ids unique when two paths differ only in
// characters that are stripped.
func (s Scope) LogicalID() string {
	var human strings.Builder
	for _, segment := range s.path[min(1, len(s.path)):] {
		human.WriteString(alnum(segment))
	}
	sum := sha256.Sum256([]byte(s.Path()))
	suffix := strings.ToUpper(hex.EncodeToString(sum[:4]))

	id := human.String()
	if limit := maxLogicalIDLength - len(suffix); len(id) > limit {
		id = id[:limit]
	}
	return id + suffix
}

// PhysicalName derives a lower-case, dash separated resource name from the
// scope path, bounded to maxLen characters.
func (s Scope) PhysicalName(maxLen int) string {
	parts := make([]string, 0, len(s.path))
	for _, segment := range s.path {
		if p := strings.ToLower(alnumDash(segment)); p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, "-")
	if len(name) > maxLen {
		name = strings.TrimRight(name[:maxLen], "-")
	}
	return name
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func alnumDash(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
