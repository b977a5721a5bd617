// Package contact normalizes phone and email references into the canonical
// form used as lookup keys by the consent store. Uniqueness guarantees across
// the whole system depend on this canonicalization being deterministic.
package contact

import (
	"regexp"
	"strings"

	dErrors "consentd/pkg/domain-errors"
)

// Type discriminates the kind of contact reference.
type Type string

const (
	TypePhone Type = "phone"
	TypeEmail Type = "email"
)

// IsValid checks if the contact type is one of the supported enum values.
func (t Type) IsValid() bool {
	return t == TypePhone || t == TypeEmail
}

// Ref is an immutable contact reference in canonical form. Two raw spellings
// of the same contact always canonicalize to the same Ref, so Refs are safe
// to compare and to embed in uniqueness keys.
type Ref struct {
	Type  Type
	Value string
	Name  string // optional display name, not part of identity
}

// Equal compares identity only; display names are ignored.
func (r Ref) Equal(other Ref) bool {
	return r.Type == other.Type && r.Value == other.Value
}

// IsZero reports whether the ref carries no contact at all.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.Value == ""
}

// e164Pattern matches E.164 phone numbers, e.g. +15551234567.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// emailPattern is intentionally loose: one @, non-empty local part, dotted domain.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// phoneSeparators are stripped before E.164 validation so that human spellings
// like "+1 (555) 123-4567" canonicalize to "+15551234567".
var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Canonicalize validates raw contact input and returns its canonical Ref.
// It is a pure function: no state, no side effects, deterministic over valid
// inputs. Fails with CodeInvalidContact when the raw value does not match the
// expected phone or email shape.
func Canonicalize(raw string, typ Type, name string) (Ref, error) {
	switch typ {
	case TypePhone:
		value := phoneSeparators.Replace(strings.TrimSpace(raw))
		if !e164Pattern.MatchString(value) {
			return Ref{}, dErrors.New(dErrors.CodeInvalidContact, "phone number must be in E.164 format (e.g., +15551234567)")
		}
		return Ref{Type: TypePhone, Value: value, Name: strings.TrimSpace(name)}, nil
	case TypeEmail:
		value := strings.ToLower(strings.TrimSpace(raw))
		if !emailPattern.MatchString(value) {
			return Ref{}, dErrors.New(dErrors.CodeInvalidContact, "invalid email address")
		}
		return Ref{Type: TypeEmail, Value: value, Name: strings.TrimSpace(name)}, nil
	default:
		return Ref{}, dErrors.New(dErrors.CodeInvalidContact, "unknown contact type: "+string(typ))
	}
}
