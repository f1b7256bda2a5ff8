package trans

import (
	"fmt"
	"strings"
)

// PluralForm describes the grammatical plural metadata of a language: how
// many forms it needs and the gettext selection expression choosing between
// them.
type PluralForm struct {
	Count int
	Rule  string
}

// pluralForms maps base language codes to their plural metadata. The rules
// are the standard gettext expressions.
var pluralForms = map[string]PluralForm{
	"ar": {6, "n==0 ? 0 : n==1 ? 1 : n==2 ? 2 : n%100>=3 && n%100<=10 ? 3 : n%100>=11 ? 4 : 5"},
	"be": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"bg": {2, "n != 1"},
	"cs": {3, "(n==1) ? 0 : (n>=2 && n<=4) ? 1 : 2"},
	"cy": {4, "(n==1) ? 0 : (n==2) ? 1 : (n != 8 && n != 11) ? 2 : 3"},
	"da": {2, "n != 1"},
	"de": {2, "n != 1"},
	"el": {2, "n != 1"},
	"en": {2, "n != 1"},
	"es": {2, "n != 1"},
	"et": {2, "n != 1"},
	"fi": {2, "n != 1"},
	"fr": {2, "n > 1"},
	"ga": {5, "n==1 ? 0 : n==2 ? 1 : (n>2 && n<7) ? 2 : (n>6 && n<11) ? 3 : 4"},
	"he": {2, "n != 1"},
	"hr": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"hu": {2, "n != 1"},
	"id": {1, "0"},
	"it": {2, "n != 1"},
	"ja": {1, "0"},
	"ko": {1, "0"},
	"lt": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"lv": {3, "n%10==1 && n%100!=11 ? 0 : n != 0 ? 1 : 2"},
	"mt": {4, "n==1 ? 0 : n==0 || ( n%100>1 && n%100<11) ? 1 : (n%100>10 && n%100<20 ) ? 2 : 3"},
	"nb": {2, "n != 1"},
	"nl": {2, "n != 1"},
	"pl": {3, "(n==1) ? 0 : (n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20)) ? 1 : 2"},
	"pt": {2, "n != 1"},
	"ro": {3, "n==1 ? 0 : (n==0 || (n%100 > 0 && n%100 < 20)) ? 1 : 2"},
	"ru": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"sk": {3, "(n==1) ? 0 : (n>=2 && n<=4) ? 1 : 2"},
	"sl": {4, "n%100==1 ? 0 : n%100==2 ? 1 : n%100==3 || n%100==4 ? 2 : 3"},
	"sr": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"sv": {2, "n != 1"},
	"th": {1, "0"},
	"tr": {2, "n > 1"},
	"uk": {3, "n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2"},
	"vi": {1, "0"},
	"zh": {1, "0"},
}

// PluralForms resolves the plural metadata for a locale tag, falling back
// from a variant ("pt-BR") to its base language. The second return value is
// false when the language is unknown.
func PluralForms(localeID string) (PluralForm, bool) {
	id := strings.ToLower(strings.ReplaceAll(localeID, "_", "-"))
	if pf, ok := pluralForms[id]; ok {
		return pf, true
	}
	if base, _, found := strings.Cut(id, "-"); found {
		if pf, ok := pluralForms[base]; ok {
			return pf, true
		}
	}
	return PluralForm{}, false
}

// GettextHeader renders the locale's plural metadata as the value of a
// gettext "Plural-Forms" catalog header.
func (l Locale) GettextHeader() string {
	count := l.PluralCount
	rule := l.PluralRule
	if count < 1 {
		count = 2
	}
	if rule == "" {
		rule = "n != 1"
	}
	return fmt.Sprintf("nplurals=%d; plural=%s;", count, rule)
}
