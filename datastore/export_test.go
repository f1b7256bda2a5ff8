package datastore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/petert82/go-translation-corpus/trans"
)

func exportAll(t *testing.T, cursor *ExportCursor, err error) []trans.ExportedEntry {
	t.Helper()

	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	entries, err := cursor.Collect()
	if err != nil {
		t.Fatalf("reading export failed: %v", err)
	}

	return entries
}

func exportPackage(t *testing.T, ds *DataStore, handle, version string, locale trans.Locale, excludeUntranslated bool) []trans.ExportedEntry {
	t.Helper()

	cursor, err := ds.ExportPackage(handle, version, locale, excludeUntranslated)
	return exportAll(t, cursor, err)
}

func exportPending(t *testing.T, ds *DataStore, locale trans.Locale) []trans.ExportedEntry {
	t.Helper()

	cursor, err := ds.ExportPending(locale)
	return exportAll(t, cursor, err)
}

func TestExportPackagePluralRoundTrip(t *testing.T) {
	ds := newTestStore(t)
	ru := testLocale(t, ds, "ru")
	if ru.PluralCount != 3 {
		t.Fatalf("expected Russian to have 3 plural forms, got %v", ru.PluralCount)
	}

	sources := []trans.Entry{
		{Text: "%d apple", Plural: "%d apples", References: []string{"src/fruit.php:12"}},
	}
	if _, err := ds.RegisterCatalog(sources, "shop", "1.0"); err != nil {
		t.Fatalf("registering catalog failed: %v", err)
	}

	forms := []string{"%d яблоко", "%d яблока", "%d яблок"}
	entry := trans.Entry{Text: "%d apple", Plural: "%d apples", Translations: forms}
	mustImport(t, ds, ru, []trans.Entry{entry}, true)

	entries := exportPackage(t, ds, "shop", "1.0", ru, false)
	if len(entries) != 1 {
		t.Fatalf("expected 1 exported entry, got %v", len(entries))
	}

	got := entries[0]
	if !got.Translated || got.Fuzzy {
		t.Errorf("expected a translated, non-fuzzy entry, got %+v", got)
	}
	if diff := cmp.Diff(forms, got.Translations.Slots()); diff != "" {
		t.Errorf("plural forms did not round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"src/fruit.php:12"}, got.References); diff != "" {
		t.Errorf("references did not round-trip (-want +got):\n%s", diff)
	}
}

func TestExportPackageKeepsRegistrationOrder(t *testing.T) {
	ds, fr := importStore(t)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)

	entries := exportPackage(t, ds, "shop", "1.0", fr, false)

	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	if diff := cmp.Diff([]string{"Cat", "%d apple", "Open"}, texts); diff != "" {
		t.Errorf("unexpected export order (-want +got):\n%s", diff)
	}

	// Untranslated strings come back empty but present.
	if entries[2].Translated || !entries[2].Fuzzy {
		t.Errorf("expected untranslated entry, got %+v", entries[2])
	}
	if entries[2].Translations.Len() != 0 {
		t.Errorf("expected no translation slots, got %v", entries[2].Translations.Slots())
	}
}

func TestExportPackageExcludeUntranslated(t *testing.T) {
	ds, fr := importStore(t)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)

	entries := exportPackage(t, ds, "shop", "1.0", fr, true)

	if len(entries) != 1 || entries[0].Text != "Cat" {
		t.Fatalf("expected only the translated string, got %+v", entries)
	}
}

func TestExportPackageMissingVersion(t *testing.T) {
	ds, fr := importStore(t)

	if _, err := ds.ExportPackage("shop", "9.9", fr, false); err != ErrNoSuchPackageVersion {
		t.Fatalf("expected ErrNoSuchPackageVersion, got %v", err)
	}
}

func TestExportShrunkenPluralCount(t *testing.T) {
	ds := newTestStore(t)
	ru := testLocale(t, ds, "ru")

	sources := []trans.Entry{{Text: "%d apple", Plural: "%d apples"}}
	if _, err := ds.RegisterCatalog(sources, "shop", "1.0"); err != nil {
		t.Fatalf("registering catalog failed: %v", err)
	}
	forms := []string{"%d яблоко", "%d яблока", "%d яблок"}
	mustImport(t, ds, ru, []trans.Entry{{Text: "%d apple", Plural: "%d apples", Translations: forms}}, true)

	// The locale's plural count shrinks after the rows were stored.
	if _, err := ds.db.Exec("UPDATE locale SET plural_count = 2 WHERE id = 'ru'"); err != nil {
		t.Fatalf("could not shrink plural count: %v", err)
	}
	ru, err := ds.GetLocale("ru")
	if err != nil {
		t.Fatalf("could not re-fetch locale: %v", err)
	}

	entries := exportPackage(t, ds, "shop", "1.0", ru, false)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", len(entries))
	}
	if diff := cmp.Diff(forms[:2], entries[0].Translations.Slots()); diff != "" {
		t.Errorf("expected surplus slots to be dropped (-want +got):\n%s", diff)
	}
}

func TestExportPending(t *testing.T) {
	ds, fr := importStore(t)

	// "Cat" has an approved current plus a pending alternative: the
	// alternative awaits review but the string has a current pointer.
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	// "Open" has a pending current translation: nothing to triage.
	open := trans.Entry{Context: "menu", Text: "Open", Translations: []string{"Ouvrir"}, Fuzzy: true}
	mustImport(t, ds, fr, []trans.Entry{open}, true)

	entries := exportPending(t, ds, fr)
	if len(entries) != 1 {
		t.Fatalf("expected 1 pending entry, got %+v", entries)
	}
	if entries[0].Text != "Cat" {
		t.Errorf("expected Cat to need review, got %q", entries[0].Text)
	}
	// Cat still has its approved current translation attached.
	if !entries[0].Translated || entries[0].Translations.Slot(0) != "Chat" {
		t.Errorf("expected the current translation alongside, got %+v", entries[0])
	}
}

func TestExportPendingOrderedByText(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	open := trans.Entry{Context: "menu", Text: "Open", Translations: []string{"Ouvrir"}}
	mustImport(t, ds, fr, []trans.Entry{open}, true)
	open.Translations = []string{"Déverrouiller"}
	open.Fuzzy = true
	mustImport(t, ds, fr, []trans.Entry{open}, true)

	entries := exportPending(t, ds, fr)

	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	if diff := cmp.Diff([]string{"Cat", "Open"}, texts); diff != "" {
		t.Errorf("unexpected pending order (-want +got):\n%s", diff)
	}
}

func TestFillCatalog(t *testing.T) {
	ds, fr := importStore(t)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)

	sources := []trans.Entry{
		{Text: ""}, // header, skipped
		{Text: "Cat", References: []string{"templates/pets.html:3"}},
		{Text: "Dog"}, // not in the corpus at all
	}

	filled, err := ds.FillCatalog(sources, fr)
	if err != nil {
		t.Fatalf("filling catalog failed: %v", err)
	}

	want := []trans.ExportedEntry{
		{
			Text:       "Cat",
			References: []string{"templates/pets.html:3"},
			Translated: true,
		},
		{
			Text:  "Dog",
			Fuzzy: true,
		},
	}
	opts := cmpopts.IgnoreFields(trans.ExportedEntry{}, "Translations")
	if diff := cmp.Diff(want, filled, opts); diff != "" {
		t.Errorf("unexpected filled catalog (-want +got):\n%s", diff)
	}
	if got := filled[0].Translations.Slot(0); got != "Chat" {
		t.Errorf("expected Chat, got %q", got)
	}
	if filled[1].Translations.Len() != 0 {
		t.Errorf("expected no translation for Dog, got %v", filled[1].Translations.Slots())
	}
}
