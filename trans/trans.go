/*
Package trans contains the core value types of the translation corpus: locales
and their plural metadata, incoming translation entries, review statuses,
import result counters and the domain events emitted by an import.
*/
package trans

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Status is the review state of a translation. The ordering is meaningful: a
// rejected translation sorts below a pending one, which sorts below an
// approved one, so "status < StatusApproved" means "not yet approved".
type Status int8

const (
	StatusRejected        Status = -1
	StatusPendingApproval Status = 0
	StatusApproved        Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusPendingApproval:
		return "pending-approval"
	case StatusApproved:
		return "approved"
	}
	return fmt.Sprintf("Status(%d)", int8(s))
}

// MaxSlots is the largest number of grammatical plural forms any locale can
// need, and so the number of translated-text slots a stored translation has.
const MaxSlots = 6

// Locale identifies a language together with its plural-form count and
// selection rule. Locales are created by administration and are read-only to
// the import/export core.
type Locale struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	PluralCount int    `db:"plural_count" json:"pluralCount"`
	PluralRule  string `db:"plural_rule" json:"pluralRule"`
}

func (l Locale) Valid() error {
	if l.ID == "" {
		return errors.New("trans: locale has no id")
	}
	if l.PluralCount < 1 || l.PluralCount > MaxSlots {
		return fmt.Errorf("trans: locale %v has invalid plural count %v", l.ID, l.PluralCount)
	}
	return nil
}

// User identifies the actor performing an import. A nil *User means the
// system/anonymous actor.
type User struct {
	ID   int64
	Name string
}

// Key returns the stable identity hash of a translatable source string. It is
// byte-stable across imports: the same (context, text, plural) triple always
// resolves to the same translatable.
func Key(context, text, plural string) string {
	h := md5.New()
	io.WriteString(h, context)
	io.WriteString(h, "\x04")
	io.WriteString(h, text)
	if plural != "" {
		io.WriteString(h, "\x05")
		io.WriteString(h, plural)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one incoming candidate translation, as produced by a catalog
// parser or assembled by an API caller.
type Entry struct {
	Context string `json:"context,omitempty"`
	Text    string `json:"text"`
	Plural  string `json:"plural,omitempty"`
	// Translations holds the translated texts: slot 0 is the singular (or
	// the only form), slot k is plural form k.
	Translations []string `json:"translations,omitempty"`
	Fuzzy        bool     `json:"fuzzy,omitempty"`
	References   []string `json:"references,omitempty"`
	Comments     []string `json:"comments,omitempty"`
}

// Key returns the identity hash of the entry's source string.
func (e Entry) Key() string {
	return Key(e.Context, e.Text, e.Plural)
}

func (e Entry) IsPlural() bool {
	return e.Plural != ""
}

// Translated reports whether the entry carries a translation at all.
func (e Entry) Translated() bool {
	return len(e.Translations) > 0 && e.Translations[0] != ""
}

// HasPluralTranslations reports whether any plural form beyond the first
// slot is translated.
func (e Entry) HasPluralTranslations() bool {
	if len(e.Translations) < 2 {
		return false
	}
	for _, t := range e.Translations[1:] {
		if t != "" {
			return true
		}
	}
	return false
}

// ExportedEntry is one reconstructed string produced by the corpus exporter:
// the source string plus its current translation for one locale.
type ExportedEntry struct {
	Context    string   `json:"context,omitempty"`
	Text       string   `json:"text"`
	Plural     string   `json:"plural,omitempty"`
	References []string `json:"references,omitempty"`
	Comments   []string `json:"comments,omitempty"`
	// Fuzzy is set when the stored translation is not yet approved.
	Fuzzy      bool `json:"fuzzy"`
	Translated bool `json:"translated"`
	// Translations holds the current translation's meaningful slots.
	Translations PluralSet `json:"translations"`
}

// ImportResult aggregates what a single import batch did. One instance is
// created per Import call and returned to the caller; it is never persisted.
type ImportResult struct {
	EmptyTranslations           int `json:"emptyTranslations"`
	UnknownStrings              int `json:"unknownStrings"`
	AddedAsCurrent              int `json:"addedAsCurrent"`
	AddedNotAsCurrent           int `json:"addedNotAsCurrent"`
	ExistingCurrentApproved     int `json:"existingCurrentApproved"`
	ExistingCurrentUntouched    int `json:"existingCurrentUntouched"`
	ExistingActivated           int `json:"existingActivated"`
	ExistingNotCurrentUntouched int `json:"existingNotCurrentUntouched"`
	NewApprovalNeeded           int `json:"newApprovalNeeded"`
}

// Total returns the number of entries the batch contained.
func (r ImportResult) Total() int {
	return r.EmptyTranslations + r.UnknownStrings + r.AddedAsCurrent +
		r.AddedNotAsCurrent + r.ExistingCurrentApproved + r.ExistingCurrentUntouched +
		r.ExistingActivated + r.ExistingNotCurrentUntouched
}

func (r ImportResult) String() string {
	return fmt.Sprintf(
		"%v added as current, %v added for review, %v approved, %v activated, %v untouched, %v empty, %v unknown, %v need approval",
		r.AddedAsCurrent, r.AddedNotAsCurrent, r.ExistingCurrentApproved,
		r.ExistingActivated, r.ExistingCurrentUntouched+r.ExistingNotCurrentUntouched,
		r.EmptyTranslations, r.UnknownStrings, r.NewApprovalNeeded)
}
