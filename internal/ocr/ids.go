package ocr

import (
	"strings"

	"github.com/google/uuid"
)

// Id layout: equations are item-<8>, terms <equationId>-term-<6>,
// symbols <termId>-symbol-<6>.
const (
	EquationPrefix  = "item-"
	TermSeparator   = "-term-"
	SymbolSeparator = "-symbol-"

	equationIDLength = 8
	childIDLength    = 6
)

// shortID returns n lowercase hex characters from a random UUID
func shortID(n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(raw) {
		n = len(raw)
	}
	return raw[:n]
}

// NewEquationID returns a fresh equation id
func NewEquationID() string {
	return EquationPrefix + shortID(equationIDLength)
}

// NewTermID returns a fresh id for a term owned by equationID
func NewTermID(equationID string) string {
	return equationID + TermSeparator + shortID(childIDLength)
}

// NewSymbolID returns a fresh id for a symbol owned by termID
func NewSymbolID(termID string) string {
	return termID + SymbolSeparator + shortID(childIDLength)
}

// ReparentSymbols returns copies of symbols with ids rewritten under termID,
// keeping each symbol's own suffix.
func ReparentSymbols(termID string, symbols []Symbol) []Symbol {
	if symbols == nil {
		return nil
	}
	out := make([]Symbol, len(symbols))
	for i, sym := range symbols {
		suffix := sym.ID
		if j := strings.LastIndex(sym.ID, SymbolSeparator); j >= 0 {
			suffix = sym.ID[j+len(SymbolSeparator):]
		}
		sym.ID = termID + SymbolSeparator + suffix
		out[i] = sym
	}
	return out
}

// TermSuffix returns the part of a term id after its last -term- separator.
// Ids without a separator are returned whole.
func TermSuffix(termID string) string {
	if i := strings.LastIndex(termID, TermSeparator); i >= 0 {
		return termID[i+len(TermSeparator):]
	}
	return termID
}

// ChildTermID re-parents a term id under equationID, keeping its suffix
func ChildTermID(equationID, termID string) string {
	return equationID + TermSeparator + TermSuffix(termID)
}

// EquationIDOf derives the owning equation id from a term id
func EquationIDOf(termID string) (string, bool) {
	i := strings.LastIndex(termID, TermSeparator)
	if i <= 0 {
		return "", false
	}
	return termID[:i], true
}
