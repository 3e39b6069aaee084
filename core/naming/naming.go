// Package naming decides whether a user supplied name is acceptable as a
// schema or data file name, normalizes it to its storage form and derives
// safe storage namespace tokens from it.
package naming

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind selects the wording and duplicate scope of a name check.
type Kind string

const (
	KindSchema Kind = "schema"
	KindData   Kind = "data"
)

const (
	// Extension is appended to every stored name.
	Extension = ".json"

	// MaxStemChars bounds the display form of a name, without its extension.
	MaxStemChars = 200

	// MaxNameBytes bounds the normalized name in UTF-8 bytes.
	MaxNameBytes = 255
)

var (
	ErrRequired         = errors.New("name is required")
	ErrTraversal        = errors.New("name must not contain path separators or '..'")
	ErrInvalidCharacter = errors.New("name contains invalid characters")
	ErrTooLong          = errors.New("name is too long")
	ErrReserved         = errors.New("name uses a reserved name")
	ErrTrailingDot      = errors.New("name cannot end with a dot or space")
	ErrDuplicate        = errors.New("name already exists")
)

var reservedName = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])(\.|$)`)

// Error reports the first rule a name broke.
type Error struct {
	Kind    Kind
	Name    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func label(kind Kind) string {
	if kind == KindSchema {
		return "Schema name"
	}
	return "File name"
}

func fail(kind Kind, name string, err error, msg string) *Error {
	return &Error{Kind: kind, Name: name, Message: msg, Err: err}
}

// Normalize appends the .json extension when it is missing.
func Normalize(name string) string {
	if strings.HasSuffix(name, Extension) {
		return name
	}
	return name + Extension
}

// Stem strips a trailing .json extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, Extension)
}

// ValidateName checks raw against the naming rules in order and returns its
// normalized form. taken lists the normalized names already in use in the
// relevant scope: every schema for KindSchema, the sibling files of the
// owning schema for KindData. The returned error is always an *Error.
func ValidateName(raw string, kind Kind, taken []string) (string, error) {
	l := label(kind)

	if strings.TrimSpace(Stem(raw)) == "" {
		return "", fail(kind, raw, ErrRequired, l+" is required")
	}

	if strings.Contains(raw, "..") || strings.ContainsAny(raw, `/\`) {
		return "", fail(kind, raw, ErrTraversal, l+" must not contain path separators or '..'")
	}

	for _, r := range raw {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"|?*`, r) {
			return "", fail(kind, raw, ErrInvalidCharacter, l+" contains invalid characters")
		}
	}

	if utf8.RuneCountInString(Stem(raw)) > MaxStemChars {
		return "", fail(kind, raw, ErrTooLong,
			fmt.Sprintf("%s is too long (maximum %d characters)", l, MaxStemChars))
	}
	normalized := Normalize(raw)
	if len(normalized) > MaxNameBytes {
		return "", fail(kind, raw, ErrTooLong,
			fmt.Sprintf("%s is too long (maximum %d bytes)", l, MaxNameBytes))
	}

	if reservedName.MatchString(raw) {
		return "", fail(kind, raw, ErrReserved, l+" uses a reserved name")
	}

	if strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, " ") {
		return "", fail(kind, raw, ErrTrailingDot, l+" cannot end with a dot or space")
	}

	for _, existing := range taken {
		if existing == normalized {
			if kind == KindSchema {
				return "", fail(kind, raw, ErrDuplicate, "A schema with this name already exists")
			}
			return "", fail(kind, raw, ErrDuplicate, "A file with this name already exists")
		}
	}

	return normalized, nil
}

// SanitizeDirectoryToken replaces every character outside [A-Za-z0-9.-]
// with '_'. An empty or whitespace-only token is a caller bug and panics.
func SanitizeDirectoryToken(name string) string {
	if strings.TrimSpace(name) == "" {
		panic("naming: empty directory token")
	}
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// NamespaceFor derives the data namespace of a schema from its name.
// "User Profile.json" and "User Profile" both map to "User_Profile".
func NamespaceFor(schemaName string) string {
	return SanitizeDirectoryToken(Stem(schemaName))
}
