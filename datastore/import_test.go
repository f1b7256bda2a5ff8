package datastore

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petert82/go-translation-corpus/trans"
)

func tr(text, translation string, fuzzy bool) trans.Entry {
	return trans.Entry{Text: text, Translations: []string{translation}, Fuzzy: fuzzy}
}

// importStore is a store with the sample catalog registered and a French
// locale created.
func importStore(t *testing.T) (*DataStore, trans.Locale) {
	t.Helper()

	ds := newTestStore(t)
	if _, err := ds.RegisterCatalog(sampleSources(), "shop", "1.0"); err != nil {
		t.Fatalf("registering catalog failed: %v", err)
	}

	return ds, testLocale(t, ds, "fr")
}

func mustImport(t *testing.T, ds *DataStore, locale trans.Locale, entries []trans.Entry, reviewer bool) (*trans.ImportResult, []trans.Event) {
	t.Helper()

	result, events, err := ds.Import(entries, locale, reviewer, nil)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	return result, events
}

type storedTranslation struct {
	Current sql.NullInt64 `db:"current"`
	Status  int           `db:"status"`
	Text0   string        `db:"text0"`
}

// storedRows fetches every stored translation row for one source string,
// oldest first.
func storedRows(t *testing.T, ds *DataStore, localeID, text string) []storedTranslation {
	t.Helper()

	var rows []storedTranslation
	err := ds.db.Select(&rows,
		`SELECT tr.current, tr.status, tr.text0
		 FROM translation tr
		 JOIN translatable t ON t.id = tr.translatable
		 WHERE t.hash = ? AND tr.locale = ?
		 ORDER BY tr.id`,
		trans.Key("", text, ""), localeID)
	if err != nil {
		t.Fatalf("could not fetch stored rows: %v", err)
	}

	return rows
}

func currentText(t *testing.T, ds *DataStore, localeID, text string) string {
	t.Helper()

	for _, r := range storedRows(t, ds, localeID, text) {
		if r.Current.Valid {
			return r.Text0
		}
	}

	return ""
}

func TestImportNewTranslation(t *testing.T) {
	ds, fr := importStore(t)

	result, events := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)

	want := trans.ImportResult{AddedAsCurrent: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 {
		t.Fatalf("expected 1 stored row, got %v", len(rows))
	}
	if !rows[0].Current.Valid || rows[0].Text0 != "Chat" || rows[0].Status != int(trans.StatusApproved) {
		t.Errorf("expected approved current row with text Chat, got %+v", rows[0])
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", len(events))
	}
	upd, ok := events[0].(trans.TranslationsUpdated)
	if !ok {
		t.Fatalf("expected a TranslationsUpdated event, got %T", events[0])
	}
	if upd.LocaleID != "fr" || len(upd.TranslatableIDs) != 1 {
		t.Errorf("unexpected event payload: %+v", upd)
	}
}

func TestImportSkipsUntranslatable(t *testing.T) {
	ds, fr := importStore(t)

	entries := []trans.Entry{
		{Text: "Cat"},                              // no translation at all
		{Text: "Cat", Translations: []string{""}},  // empty translation
		{Text: "%d apple", Plural: "%d apples", Translations: []string{"%d pomme"}}, // missing plural forms
	}
	result, events := mustImport(t, ds, fr, entries, true)

	want := trans.ImportResult{EmptyTranslations: 3}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %v", events)
	}
}

func TestImportUnknownString(t *testing.T) {
	ds, fr := importStore(t)

	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Dog", "Chien", false)}, true)

	if result.UnknownStrings != 1 {
		t.Errorf("expected 1 unknown string, got %v", result.UnknownStrings)
	}
	if rows := storedRows(t, ds, "fr", "Dog"); len(rows) != 0 {
		t.Errorf("expected no rows for unknown string, got %v", len(rows))
	}
}

func TestImportIdempotent(t *testing.T) {
	ds, fr := importStore(t)
	entries := []trans.Entry{tr("Cat", "Chat", false)}

	mustImport(t, ds, fr, entries, true)
	result, events := mustImport(t, ds, fr, entries, true)

	want := trans.ImportResult{ExistingCurrentUntouched: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	if len(events) != 0 {
		t.Errorf("expected no events on a no-op import, got %v", events)
	}
	if rows := storedRows(t, ds, "fr", "Cat"); len(rows) != 1 {
		t.Errorf("expected no extra rows, got %v", len(rows))
	}
}

func TestImportApprovesCurrentInPlace(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", true)}, true)
	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)

	if result.ExistingCurrentApproved != 1 {
		t.Fatalf("expected 1 approval, got %+v", result)
	}
	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 || !rows[0].Current.Valid || rows[0].Status != int(trans.StatusApproved) {
		t.Errorf("expected the current row to be approved in place, got %+v", rows)
	}
}

func TestImportReplacesUnapprovedCurrent(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", true)}, true)
	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Le chat", false)}, true)

	if result.AddedAsCurrent != 1 {
		t.Fatalf("expected the new translation to become current, got %+v", result)
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %v", len(rows))
	}
	// The demoted pending row is rejected, the replacement is approved.
	if rows[0].Current.Valid || rows[0].Status != int(trans.StatusRejected) {
		t.Errorf("expected old row demoted to rejected, got %+v", rows[0])
	}
	if !rows[1].Current.Valid || rows[1].Text0 != "Le chat" || rows[1].Status != int(trans.StatusApproved) {
		t.Errorf("expected new row approved and current, got %+v", rows[1])
	}
}

func TestImportKeepsApprovedCurrentOverFuzzy(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)
	result, events := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	want := trans.ImportResult{AddedNotAsCurrent: 1, NewApprovalNeeded: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	if got := currentText(t, ds, "fr", "Cat"); got != "Chat" {
		t.Errorf("expected approved translation to stay current, got %q", got)
	}

	if len(events) != 1 {
		t.Fatalf("expected only an approval event, got %v", events)
	}
	appr, ok := events[0].(trans.ApprovalNeeded)
	if !ok || appr.LocaleID != "fr" || appr.Count != 1 {
		t.Errorf("unexpected approval event: %+v", events[0])
	}
}

func TestImportActivatesStoredAlternative(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	// A reviewer confirms the stored alternative.
	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", false)}, true)

	if result.ExistingActivated != 1 {
		t.Fatalf("expected the alternative to be activated, got %+v", result)
	}
	if got := currentText(t, ds, "fr", "Cat"); got != "Minou" {
		t.Errorf("expected Minou to be current, got %q", got)
	}

	currents := 0
	for _, r := range storedRows(t, ds, "fr", "Cat") {
		if r.Current.Valid {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("expected exactly one current row, got %v", currents)
	}
}

func TestImportFuzzyAlternativeLeavesStoredRowAlone(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, true)
	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Minou", true)}, true)

	if result.ExistingNotCurrentUntouched != 1 {
		t.Fatalf("expected the stored alternative to be left alone, got %+v", result)
	}
	if got := currentText(t, ds, "fr", "Cat"); got != "Chat" {
		t.Errorf("expected Chat to stay current, got %q", got)
	}
}

func TestImportActivatesRowWhenNothingIsCurrent(t *testing.T) {
	ds, fr := importStore(t)

	mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", true)}, true)
	// A reviewer retracted the translation out of band.
	if _, err := ds.db.Exec("UPDATE translation SET current = NULL, current_since = NULL"); err != nil {
		t.Fatalf("could not clear current flag: %v", err)
	}

	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", true)}, true)

	if result.AddedAsCurrent != 1 {
		t.Fatalf("expected the stored row to be reactivated, got %+v", result)
	}
	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 || !rows[0].Current.Valid {
		t.Errorf("expected the existing row to become current again, got %+v", rows)
	}
}

func TestImportNonReviewerIsAlwaysFuzzy(t *testing.T) {
	ds, fr := importStore(t)

	result, _ := mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, false)

	want := trans.ImportResult{AddedAsCurrent: 1, NewApprovalNeeded: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 || rows[0].Status != int(trans.StatusPendingApproval) {
		t.Errorf("expected a pending current row, got %+v", rows)
	}

	// And a non-reviewer cannot approve the current translation in place.
	result, _ = mustImport(t, ds, fr, []trans.Entry{tr("Cat", "Chat", false)}, false)
	if result.ExistingCurrentUntouched != 1 {
		t.Errorf("expected the pending row to stay pending, got %+v", result)
	}
}

func TestImportRepeatedEntryInOneBatch(t *testing.T) {
	ds, fr := importStore(t)

	// The same entry twice in a single batch must behave like two
	// sequential imports, not insert two current rows.
	entries := []trans.Entry{
		tr("Cat", "Chat", false),
		tr("Cat", "Chat", false),
	}
	result, _ := mustImport(t, ds, fr, entries, true)

	want := trans.ImportResult{AddedAsCurrent: 1, ExistingCurrentUntouched: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 {
		t.Fatalf("expected 1 stored row, got %v", len(rows))
	}
	if !rows[0].Current.Valid || rows[0].Status != int(trans.StatusApproved) {
		t.Errorf("expected one approved current row, got %+v", rows[0])
	}
}

func TestImportReviewerConfirmsEarlierBatchEntry(t *testing.T) {
	ds, fr := importStore(t)

	// A fuzzy entry followed by a reviewer-confirmed copy of the same
	// translation in one batch approves the queued row in place.
	entries := []trans.Entry{
		tr("Cat", "Chat", true),
		tr("Cat", "Chat", false),
	}
	result, _ := mustImport(t, ds, fr, entries, true)

	want := trans.ImportResult{AddedAsCurrent: 1, NewApprovalNeeded: 1, ExistingCurrentApproved: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 1 || !rows[0].Current.Valid || rows[0].Status != int(trans.StatusApproved) {
		t.Errorf("expected one approved current row, got %+v", rows)
	}
}

func TestImportConflictingEntriesInOneBatch(t *testing.T) {
	ds, fr := importStore(t)

	entries := []trans.Entry{
		tr("Cat", "Chat", true),
		tr("Cat", "Le chat", false),
	}
	result, _ := mustImport(t, ds, fr, entries, true)

	want := trans.ImportResult{AddedAsCurrent: 2, NewApprovalNeeded: 1}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %v", len(rows))
	}
	if rows[0].Current.Valid || rows[0].Status != int(trans.StatusRejected) {
		t.Errorf("expected the fuzzy row demoted to rejected, got %+v", rows[0])
	}
	if !rows[1].Current.Valid || rows[1].Text0 != "Le chat" || rows[1].Status != int(trans.StatusApproved) {
		t.Errorf("expected the reviewed row approved and current, got %+v", rows[1])
	}
}

func TestImportConcurrentSameString(t *testing.T) {
	ds, fr := importStore(t)

	// Two imports racing on the same source string and locale must leave
	// exactly one current row.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		text := fmt.Sprintf("Chat %d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ds.Import([]trans.Entry{tr("Cat", text, false)}, fr, true, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent import failed: %v", err)
		}
	}

	rows := storedRows(t, ds, "fr", "Cat")
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %v", len(rows))
	}
	currents := 0
	for _, r := range rows {
		if r.Current.Valid {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("expected exactly one current row, got %v", currents)
	}
}

func TestImportInvalidLocale(t *testing.T) {
	ds, _ := importStore(t)

	_, _, err := ds.Import([]trans.Entry{tr("Cat", "Chat", false)}, trans.Locale{}, true, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid locale")
	}
}

func TestImportRollsBackWholeBatchOnError(t *testing.T) {
	ds, fr := importStore(t)

	// Fail the insert of one particular translation mid-batch.
	_, err := ds.db.Exec(`CREATE TRIGGER boom BEFORE INSERT ON translation
		WHEN NEW.text0 = 'BOOM' BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	if err != nil {
		t.Fatalf("could not create trigger: %v", err)
	}

	entries := []trans.Entry{
		tr("Cat", "Chat", false),
		tr("Open", "BOOM", false),
	}
	entries[1].Context = "menu"

	if _, _, err = ds.Import(entries, fr, true, nil); err == nil {
		t.Fatal("expected the import to fail")
	}

	var n int
	if err := ds.db.Get(&n, "SELECT COUNT(*) FROM translation"); err != nil {
		t.Fatalf("could not count rows: %v", err)
	}
	if n != 0 {
		t.Errorf("expected the whole batch to roll back, found %v rows", n)
	}
}

func TestImportLargeBatch(t *testing.T) {
	ds := newTestStore(t)
	fr := testLocale(t, ds, "fr")

	// Well past the insert batch size, so a flush happens mid-import.
	n := importBatchSize*2 + 7
	var sources, entries []trans.Entry
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("String %03d", i)
		sources = append(sources, trans.Entry{Text: text})
		entries = append(entries, tr(text, fmt.Sprintf("Chaîne %03d", i), false))
	}
	if _, err := ds.RegisterCatalog(sources, "big", "1.0"); err != nil {
		t.Fatalf("registering catalog failed: %v", err)
	}

	result, events := mustImport(t, ds, fr, entries, true)

	if result.AddedAsCurrent != n {
		t.Fatalf("expected %v added as current, got %+v", n, result)
	}

	var stored int
	if err := ds.db.Get(&stored, "SELECT COUNT(*) FROM translation WHERE current = 1"); err != nil {
		t.Fatalf("could not count rows: %v", err)
	}
	if stored != n {
		t.Errorf("expected %v current rows, got %v", n, stored)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", len(events))
	}
	if upd := events[0].(trans.TranslationsUpdated); len(upd.TranslatableIDs) != n {
		t.Errorf("expected %v changed translatables, got %v", n, len(upd.TranslatableIDs))
	}
}
