package engine

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/infra/anem"
)

// DocumentStore decides where retrieved confirmation documents live on
// disk. Each member gets a directory named after their full name,
// falling back to the identity number when no name is known yet.
type DocumentStore struct {
	baseDir string
}

// NewDocumentStore creates a store rooted at baseDir.
func NewDocumentStore(baseDir string) *DocumentStore {
	return &DocumentStore{baseDir: baseDir}
}

// MemberDir returns the member's output directory, creating it if
// needed.
func (s *DocumentStore) MemberDir(m *domain.Member) (string, error) {
	name := sanitizeName(m.FullNameAr())
	if name == "" {
		name = sanitizeName(m.IdentityDoc)
	}
	if name == "" {
		name = m.WassitNumber
	}
	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DocumentPath returns the target file path for one document kind inside
// the member's directory.
func (s *DocumentStore) DocumentPath(dir string, kind anem.DocumentKind, m *domain.Member) string {
	prefix := "honneur"
	if kind == anem.DocumentRdv {
		prefix = "rdv"
	}
	name := sanitizeName(m.FullNameAr())
	if name == "" {
		name = sanitizeName(m.IdentityDoc)
	}
	return filepath.Join(dir, prefix+"_"+name+".pdf")
}

// sanitizeName keeps letters, digits, spaces, underscores and hyphens,
// then collapses spaces to underscores.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
