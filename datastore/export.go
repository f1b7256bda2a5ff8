package datastore

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/petert82/go-translation-corpus/trans"
)

// exportRow is one scanned row of an export query. The translation columns
// are nullable because untranslated strings come back from a left join.
type exportRow struct {
	Context   string         `db:"context"`
	Text      string         `db:"text"`
	Plural    string         `db:"plural"`
	Locations string         `db:"locations"`
	Comments  string         `db:"comments"`
	Status    sql.NullInt64  `db:"status"`
	Text0     sql.NullString `db:"text0"`
	Text1     sql.NullString `db:"text1"`
	Text2     sql.NullString `db:"text2"`
	Text3     sql.NullString `db:"text3"`
	Text4     sql.NullString `db:"text4"`
	Text5     sql.NullString `db:"text5"`
}

func (r *exportRow) toEntry(pluralCount int) (e trans.ExportedEntry, err error) {
	e.Context = r.Context
	e.Text = r.Text
	e.Plural = r.Plural

	if err = json.Unmarshal([]byte(r.Locations), &e.References); err != nil {
		return e, err
	}
	if err = json.Unmarshal([]byte(r.Comments), &e.Comments); err != nil {
		return e, err
	}

	e.Translated = r.Text0.Valid
	e.Fuzzy = !r.Status.Valid || trans.Status(r.Status.Int64) < trans.StatusApproved
	if e.Translated {
		slots := []string{
			r.Text0.String, r.Text1.String, r.Text2.String,
			r.Text3.String, r.Text4.String, r.Text5.String,
		}
		e.Translations = trans.PluralSetFromSlots(slots, r.Plural != "", pluralCount)
	}

	return e, nil
}

// ExportCursor streams exported entries one at a time, so callers can write
// out arbitrarily large catalogs without holding them in memory. Use it like
// sql.Rows: Next, Entry, then Err and Close when done.
type ExportCursor struct {
	rows        *sqlx.Rows
	pluralCount int
	cur         trans.ExportedEntry
	err         error
}

func (c *ExportCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	var r exportRow
	if err := c.rows.StructScan(&r); err != nil {
		c.err = err
		return false
	}
	entry, err := r.toEntry(c.pluralCount)
	if err != nil {
		c.err = err
		return false
	}
	c.cur = entry

	return true
}

// Entry returns the entry positioned by the last successful Next.
func (c *ExportCursor) Entry() trans.ExportedEntry {
	return c.cur
}

func (c *ExportCursor) Err() error {
	return c.err
}

func (c *ExportCursor) Close() error {
	return c.rows.Close()
}

// Collect drains the cursor into a slice and closes it.
func (c *ExportCursor) Collect() ([]trans.ExportedEntry, error) {
	defer c.Close()

	var entries []trans.ExportedEntry
	for c.Next() {
		entries = append(entries, c.Entry())
	}

	return entries, c.Err()
}

// exportSelect builds the common part of the export queries: translatables
// joined against their current translation for one locale. With
// excludeUntranslated the join becomes inner and untranslated strings drop
// out of the result.
func (ds *DataStore) exportSelect(withPlaces, excludeUntranslated bool, localeID string) sq.SelectBuilder {
	cols := []string{"t.context", "t.text", "t.plural"}
	if withPlaces {
		cols = append(cols, "p.locations", "p.comments")
	} else {
		cols = append(cols, "'[]' AS locations", "'[]' AS comments")
	}
	cols = append(cols, "tr.status", "tr.text0", "tr.text1", "tr.text2", "tr.text3", "tr.text4", "tr.text5")

	b := ds.sq.Select(cols...).From("translatable t")

	join := "translation tr ON t.id = tr.translatable AND tr.current = 1 AND tr.locale = ?"
	if excludeUntranslated {
		b = b.Join(join, localeID)
	} else {
		b = b.LeftJoin(join, localeID)
	}

	return b
}

// ExportPackage streams the catalog of one package version in the order the
// strings were registered. Untranslated strings are included with empty
// translations unless excludeUntranslated is set.
func (ds *DataStore) ExportPackage(handle, version string, locale trans.Locale, excludeUntranslated bool) (*ExportCursor, error) {
	start := time.Now()
	defer func() { ds.Stats.Log("translation", "exportPackage", time.Since(start)) }()

	if err := locale.Valid(); err != nil {
		return nil, err
	}
	pvID, err := ds.GetPackageVersionID(handle, version)
	if err != nil {
		return nil, err
	}

	query, args, err := ds.exportSelect(true, excludeUntranslated, locale.ID).
		Join("translatable_place p ON p.translatable = t.id").
		Where("p.package_version = ?", pvID).
		OrderBy("p.sort").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ds.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}

	return &ExportCursor{rows: rows, pluralCount: locale.PluralCount}, nil
}

// ExportPending streams the strings that have at least one non-current
// translation waiting for review, across all packages. When the string also
// has a current translation it is included in the exported entry, so a
// reviewer sees what the pending alternative would replace.
func (ds *DataStore) ExportPending(locale trans.Locale) (*ExportCursor, error) {
	start := time.Now()
	defer func() { ds.Stats.Log("translation", "exportPending", time.Since(start)) }()

	if err := locale.Valid(); err != nil {
		return nil, err
	}

	query, args, err := ds.exportSelect(false, false, locale.ID).
		Join("(SELECT DISTINCT translatable FROM translation WHERE locale = ? AND current IS NULL AND status = ?) pending ON pending.translatable = t.id",
			locale.ID, trans.StatusPendingApproval).
		OrderBy("t.text").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ds.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}

	return &ExportCursor{rows: rows, pluralCount: locale.PluralCount}, nil
}

// fillRow is a current translation keyed by its translatable hash, used to
// overlay stored translations onto a parsed catalog.
type fillRow struct {
	Hash   string `db:"hash"`
	Status int    `db:"status"`
	Text0  string `db:"text0"`
	Text1  string `db:"text1"`
	Text2  string `db:"text2"`
	Text3  string `db:"text3"`
	Text4  string `db:"text4"`
	Text5  string `db:"text5"`
}

// FillCatalog overlays the locale's current translations onto a parsed
// source catalog, keeping the catalog's own ordering, references and
// comments. Strings the corpus doesn't know stay untranslated.
func (ds *DataStore) FillCatalog(sources []trans.Entry, locale trans.Locale) ([]trans.ExportedEntry, error) {
	start := time.Now()
	defer func() { ds.Stats.Log("translation", "fillCatalog", time.Since(start)) }()

	if err := locale.Valid(); err != nil {
		return nil, err
	}

	query, args, err := ds.sq.Select(
		"t.hash", "tr.status", "tr.text0", "tr.text1", "tr.text2", "tr.text3", "tr.text4", "tr.text5").
		From("translatable t").
		Join("translation tr ON t.id = tr.translatable AND tr.current = 1 AND tr.locale = ?", locale.ID).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ds.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byHash := make(map[string]fillRow)
	for rows.Next() {
		var r fillRow
		if err = rows.StructScan(&r); err != nil {
			return nil, err
		}
		byHash[r.Hash] = r
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	out := make([]trans.ExportedEntry, 0, len(sources))
	for _, e := range sources {
		if e.Text == "" {
			continue
		}
		ex := trans.ExportedEntry{
			Context:    e.Context,
			Text:       e.Text,
			Plural:     e.Plural,
			References: e.References,
			Comments:   e.Comments,
			Fuzzy:      true,
		}
		if r, ok := byHash[e.Key()]; ok {
			ex.Translated = true
			ex.Fuzzy = trans.Status(r.Status) < trans.StatusApproved
			ex.Translations = trans.PluralSetFromSlots(
				[]string{r.Text0, r.Text1, r.Text2, r.Text3, r.Text4, r.Text5},
				e.IsPlural(), locale.PluralCount)
		}
		out = append(out, ex)
	}

	return out, nil
}
