// Package role defines the fixed canonical role set and the canonicalizer
// that folds free-text role names onto it. Role names arrive from API
// payloads in arbitrary case and with optional diacritics ("attaché"); every
// security decision downstream works only with the canonical spelling, so
// this package is the single trust boundary for role text.
package role

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Canonical role names. Admin is the global super-role: the access evaluator
// grants it unconditionally, regardless of department-scoped rows.
const (
	Admin      = "Admin"
	HR         = "HR"
	Supervisor = "Supervisor"
	Instructor = "Instructor"
	Intern     = "Intern"
	Attache    = "Attache"
)

// All lists every canonical role.
var All = []string{Admin, HR, Supervisor, Instructor, Intern, Attache}

// aliases maps additional accepted spellings to canonical roles. The keys are
// folded at table build time, so accented and unaccented variants may be
// listed in their natural form.
var aliases = map[string]string{
	"Attaché": Attache,
	"attache": Attache,
}

// table is the normalized-input -> canonical lookup, built once at process
// start. Ambiguous aliases (one folded key claiming two canonicals) are a
// programming error and abort startup rather than being resolved by guess.
var table = buildTable()

func buildTable() map[string]string {
	m := make(map[string]string, len(All)+len(aliases))
	for _, canonical := range All {
		m[Fold(canonical)] = canonical
	}
	for alias, canonical := range aliases {
		key := Fold(alias)
		if existing, ok := m[key]; ok && existing != canonical {
			panic(fmt.Sprintf("role: alias %q is ambiguous between %s and %s", alias, existing, canonical))
		}
		m[key] = canonical
	}
	return m
}

// Canonical maps free-text input onto the canonical role set. The input is
// trimmed, case-folded and stripped of combining diacritical marks before
// matching. Unrecognized input reports ok=false; it is never guessed at.
func Canonical(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	canonical, ok := table[Fold(raw)]
	return canonical, ok
}

// Known reports whether raw resolves to any canonical role.
func Known(raw string) bool {
	_, ok := Canonical(raw)
	return ok
}

// Fold lower-cases the input and removes combining diacritical marks:
// NFD decomposition, drop non-spacing marks, recompose to NFC.
func Fold(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	decomposed := norm.NFD.String(lower)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
