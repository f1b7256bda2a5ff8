package trans

import "encoding/json"

// PluralSet holds the ordered translated texts of one translation: slot k
// carries grammatical plural form k. A non-plural string only ever uses slot
// 0. A PluralSet never has more than MaxSlots slots.
type PluralSet struct {
	texts []string
}

// slotCount returns how many slots are meaningful for a string in a locale
// with the given plural count.
func slotCount(isPlural bool, pluralCount int) int {
	if !isPlural {
		return 1
	}
	if pluralCount < 1 {
		return 1
	}
	if pluralCount > MaxSlots {
		return MaxSlots
	}
	return pluralCount
}

// NewPluralSet builds the meaningful slots for an incoming entry in a locale:
// one slot for a singular-only string, the locale's plural count for a plural
// one. Missing incoming texts become empty slots.
func NewPluralSet(e Entry, pluralCount int) PluralSet {
	n := slotCount(e.IsPlural(), pluralCount)
	texts := make([]string, n)
	for k := 0; k < n && k < len(e.Translations); k++ {
		texts[k] = e.Translations[k]
	}
	return PluralSet{texts: texts}
}

// PluralSetFromSlots rebuilds a set from stored slot columns, keeping only
// the slots the locale needs. Slots past the plural count are dropped even if
// populated, which covers a locale whose plural count has shrunk.
func PluralSetFromSlots(slots []string, isPlural bool, pluralCount int) PluralSet {
	n := slotCount(isPlural, pluralCount)
	texts := make([]string, n)
	for k := 0; k < n && k < len(slots); k++ {
		texts[k] = slots[k]
	}
	return PluralSet{texts: texts}
}

func (p PluralSet) Len() int {
	return len(p.texts)
}

// Slot returns the text for plural form k, or "" for an out-of-range slot.
func (p PluralSet) Slot(k int) string {
	if k < 0 || k >= len(p.texts) {
		return ""
	}
	return p.texts[k]
}

// Slots returns a copy of the meaningful texts in slot order.
func (p PluralSet) Slots() []string {
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// Equal reports whether two sets carry the same texts across all meaningful
// slots. Duplicate detection during import is defined by this comparison.
func (p PluralSet) Equal(o PluralSet) bool {
	if len(p.texts) != len(o.texts) {
		return false
	}
	for k := range p.texts {
		if p.texts[k] != o.texts[k] {
			return false
		}
	}
	return true
}

// Storage spreads the set over the fixed slot columns of the translation
// table, padding unused slots with empty strings.
func (p PluralSet) Storage() [MaxSlots]string {
	var out [MaxSlots]string
	copy(out[:], p.texts)
	return out
}

// MarshalJSON renders the set as a plain array of texts.
func (p PluralSet) MarshalJSON() ([]byte, error) {
	if p.texts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.texts)
}

// UnmarshalJSON restores a set from a plain array of texts. Surplus slots
// are dropped.
func (p *PluralSet) UnmarshalJSON(data []byte) error {
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return err
	}
	if len(texts) > MaxSlots {
		texts = texts[:MaxSlots]
	}
	p.texts = texts
	return nil
}
