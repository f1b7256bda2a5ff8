package datastore

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/petert82/go-translation-corpus/trans"
)

// importBatchSize is how many new translation rows are buffered before a
// bulk insert is flushed.
const importBatchSize = 50

var translationInsertColumns = []string{
	"locale", "created_on", "created_by", "current", "current_since",
	"status", "translatable", "text0", "text1", "text2", "text3", "text4", "text5",
}

// searchRow is one existing translation row fetched during classification,
// or a bare translatable when the locale has no rows for it yet.
type searchRow struct {
	TranslatableID int64          `db:"translatable_id"`
	ID             sql.NullInt64  `db:"id"`
	Current        sql.NullInt64  `db:"current"`
	Status         sql.NullInt64  `db:"status"`
	Text0          sql.NullString `db:"text0"`
	Text1          sql.NullString `db:"text1"`
	Text2          sql.NullString `db:"text2"`
	Text3          sql.NullString `db:"text3"`
	Text4          sql.NullString `db:"text4"`
	Text5          sql.NullString `db:"text5"`
}

func (r *searchRow) status() trans.Status {
	return trans.Status(r.Status.Int64)
}

func (r *searchRow) isCurrent() bool {
	return r.Current.Valid && r.Current.Int64 == 1
}

func (r *searchRow) pluralSet(isPlural bool, pluralCount int) trans.PluralSet {
	slots := []string{
		r.Text0.String, r.Text1.String, r.Text2.String,
		r.Text3.String, r.Text4.String, r.Text5.String,
	}
	return trans.PluralSetFromSlots(slots, isPlural, pluralCount)
}

// candidate is one existing translation the incoming entry is matched
// against: either a row stored in the database or an insert queued earlier
// in the same batch that has not been flushed yet.
type candidate interface {
	status() trans.Status
	isCurrent() bool
	demote() error
	makeCurrent(status trans.Status, since time.Time) error
	approve() error
}

// storedCandidate wraps a database row; its mutations are SQL updates run
// inside the import transaction.
type storedCandidate struct {
	ds  *DataStore
	tx  *sqlx.Tx
	row searchRow
}

func (c *storedCandidate) status() trans.Status { return c.row.status() }
func (c *storedCandidate) isCurrent() bool      { return c.row.isCurrent() }

func (c *storedCandidate) demote() error {
	return c.ds.demote(c.tx, &c.row)
}

func (c *storedCandidate) makeCurrent(status trans.Status, since time.Time) error {
	return c.ds.setCurrent(c.tx, c.row.ID.Int64, status, since)
}

func (c *storedCandidate) approve() error {
	return c.ds.approve(c.tx, c.row.ID.Int64)
}

// Value positions in translationInsertColumns that later entries in the
// same batch may need to rewrite before the row is flushed.
const (
	insColCurrent      = 3
	insColCurrentSince = 4
	insColStatus       = 5
)

// queuedCandidate is a row still sitting in the insert batcher. Its values
// slice is the one the batcher will flush, so rewriting slots here changes
// what gets inserted.
type queuedCandidate struct {
	row []interface{}
	set trans.PluralSet
	st  trans.Status
	cur bool
}

func (c *queuedCandidate) status() trans.Status { return c.st }
func (c *queuedCandidate) isCurrent() bool      { return c.cur }

func (c *queuedCandidate) demote() error {
	if c.st == trans.StatusPendingApproval {
		c.st = trans.StatusRejected
	}
	c.cur = false
	c.row[insColCurrent] = nil
	c.row[insColCurrentSince] = nil
	c.row[insColStatus] = c.st
	return nil
}

func (c *queuedCandidate) makeCurrent(status trans.Status, since time.Time) error {
	c.st = status
	c.cur = true
	c.row[insColCurrent] = 1
	c.row[insColCurrentSince] = since
	c.row[insColStatus] = status
	return nil
}

func (c *queuedCandidate) approve() error {
	c.st = trans.StatusApproved
	c.row[insColStatus] = trans.StatusApproved
	return nil
}

func statusFor(fuzzy bool) trans.Status {
	if fuzzy {
		return trans.StatusPendingApproval
	}
	return trans.StatusApproved
}

func maxStatus(a, b trans.Status) trans.Status {
	if a > b {
		return a
	}
	return b
}

// Import merges a batch of candidate translations for one locale into the
// corpus. For each entry it decides whether the translation is new, a
// duplicate of a stored row, or an alternative to the currently active row,
// and applies the minimal writes needed to reach the new state. The whole
// batch runs in a single transaction: on error nothing is committed and no
// counters are returned.
//
// Unknown source strings are counted and skipped, never created here (see
// RegisterCatalog). When reviewerRole is false every entry is treated as
// fuzzy, so non-reviewers can never mark a translation approved. A nil actor
// means the system/anonymous user.
//
// The returned events describe what the committed batch changed; delivering
// them is the caller's job and must not affect the merge outcome. At most one
// translation row per (translatable, locale) is current after any sequence of
// imports; concurrent imports for the same locale are serialized on a
// per-locale lock.
func (ds *DataStore) Import(entries []trans.Entry, locale trans.Locale, reviewerRole bool, actor *trans.User) (result *trans.ImportResult, events []trans.Event, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("translation", "import", time.Since(start)) }()

	if err = locale.Valid(); err != nil {
		return nil, nil, err
	}

	lock := ds.importLock(locale.ID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	var createdBy interface{}
	if actor != nil {
		createdBy = actor.ID
	}

	result = &trans.ImportResult{}
	var changed []int64
	changedSeen := make(map[int64]bool)
	markChanged := func(id int64) {
		if !changedSeen[id] {
			changedSeen[id] = true
			changed = append(changed, id)
		}
	}

	tx, err := ds.db.Beginx()
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	searchSQL, _, err := ds.sq.Select(
		"t.id AS translatable_id", "tr.id AS id", "tr.current", "tr.status",
		"tr.text0", "tr.text1", "tr.text2", "tr.text3", "tr.text4", "tr.text5").
		From("translatable t").
		LeftJoin("translation tr ON t.id = tr.translatable AND tr.locale = ?").
		Where("t.hash = ?").
		ToSql()
	if err != nil {
		return nil, nil, err
	}
	search, err := tx.Preparex(searchSQL)
	if err != nil {
		return nil, nil, err
	}
	defer search.Close()

	inserts := newInsertBatcher(tx, ds.sq, "translation", translationInsertColumns, importBatchSize)

	// Rows queued in the batcher by earlier entries, by translatable id.
	// Classification queries cannot see them until a flush, so duplicate
	// source strings within one batch are matched against this map instead.
	queued := make(map[int64][]*queuedCandidate)

	for _, e := range entries {
		if !e.Translated() {
			result.EmptyTranslations++
			continue
		}
		if e.IsPlural() && locale.PluralCount > 1 && !e.HasPluralTranslations() {
			// the locale needs plural forms this entry doesn't supply
			result.EmptyTranslations++
			continue
		}

		incoming := trans.NewPluralSet(e, locale.PluralCount)

		translatableID, stored, err := classify(search, locale, e)
		if err != nil {
			return nil, nil, err
		}
		if translatableID == 0 {
			// importing never creates source strings
			result.UnknownStrings++
			continue
		}

		var current, same candidate
		for i := range stored {
			c := &storedCandidate{ds: ds, tx: tx, row: stored[i]}
			if current == nil && c.isCurrent() {
				current = c
			}
			if same == nil && incoming.Equal(c.row.pluralSet(e.IsPlural(), locale.PluralCount)) {
				same = c
			}
		}
		for _, q := range queued[translatableID] {
			if current == nil && q.isCurrent() {
				current = q
			}
			if same == nil && incoming.Equal(q.set) {
				same = q
			}
		}

		fuzzy := e.Fuzzy
		if !reviewerRole {
			fuzzy = true
		}

		switch {
		case same == nil:
			// The incoming text is new for this string and locale.
			var addCurrent bool
			var addStatus trans.Status
			switch {
			case current == nil:
				// Nothing is current: the new row becomes the current
				// translation.
				addCurrent = true
				addStatus = statusFor(fuzzy)
				if fuzzy {
					result.NewApprovalNeeded++
				}
				markChanged(translatableID)
				result.AddedAsCurrent++
			case !fuzzy || current.status() < trans.StatusApproved:
				// Replace the current translation with the new one.
				if err := current.demote(); err != nil {
					return nil, nil, err
				}
				addCurrent = true
				addStatus = statusFor(fuzzy)
				if fuzzy {
					result.NewApprovalNeeded++
				}
				markChanged(translatableID)
				result.AddedAsCurrent++
			default:
				// Keep the approved current translation; store the new one
				// as a pending alternative.
				addStatus = trans.StatusPendingApproval
				result.AddedNotAsCurrent++
				result.NewApprovalNeeded++
			}

			st := incoming.Storage()
			var cur, since interface{}
			if addCurrent {
				cur, since = 1, now
			}
			row := []interface{}{locale.ID, now, createdBy, cur, since, addStatus, translatableID,
				st[0], st[1], st[2], st[3], st[4], st[5]}
			if err := inserts.Add(row...); err != nil {
				return nil, nil, err
			}
			if inserts.Pending() == 0 {
				// the batch just flushed; classification sees those rows now
				queued = make(map[int64][]*queuedCandidate)
			} else {
				queued[translatableID] = append(queued[translatableID],
					&queuedCandidate{row: row, set: incoming, st: addStatus, cur: addCurrent})
			}

		case current == nil:
			// The translation is already stored but nothing is current:
			// activate the stored row.
			prev := same.status()
			newStatus := maxStatus(prev, statusFor(fuzzy))
			if err := same.makeCurrent(newStatus, now); err != nil {
				return nil, nil, err
			}
			markChanged(translatableID)
			result.AddedAsCurrent++
			if newStatus == trans.StatusPendingApproval && prev != trans.StatusPendingApproval {
				result.NewApprovalNeeded++
			}

		case same.isCurrent():
			// The translation is already the current one.
			if !fuzzy && same.status() < trans.StatusApproved {
				if err := same.approve(); err != nil {
					return nil, nil, err
				}
				result.ExistingCurrentApproved++
			} else {
				result.ExistingCurrentUntouched++
			}

		default:
			// The translation is stored but another row is current.
			if !fuzzy || current.status() < trans.StatusApproved {
				if err := current.demote(); err != nil {
					return nil, nil, err
				}
				if err := same.makeCurrent(trans.StatusApproved, now); err != nil {
					return nil, nil, err
				}
				markChanged(translatableID)
				result.ExistingActivated++
			} else {
				result.ExistingNotCurrentUntouched++
			}
		}
	}

	if err = inserts.Flush(); err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true

	if len(changed) > 0 {
		events = append(events, trans.TranslationsUpdated{LocaleID: locale.ID, TranslatableIDs: changed})
	}
	if result.NewApprovalNeeded > 0 {
		events = append(events, trans.ApprovalNeeded{LocaleID: locale.ID, Count: result.NewApprovalNeeded})
	}

	return result, events, nil
}

// classify reads the existing translation rows for the entry's translatable
// and locale. A zero translatable id means the source string is unknown.
func classify(search *sqlx.Stmt, locale trans.Locale, e trans.Entry) (translatableID int64, stored []searchRow, err error) {
	rows, err := search.Queryx(locale.ID, e.Key())
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r searchRow
		if err = rows.StructScan(&r); err != nil {
			return 0, nil, err
		}
		if translatableID == 0 {
			translatableID = r.TranslatableID
		}
		if !r.ID.Valid {
			// bare translatable, no translations for this locale yet
			break
		}
		stored = append(stored, r)
	}

	return translatableID, stored, rows.Err()
}

// demote takes the current flag off a row. A pending row loses its chance:
// it is rejected; an approved row keeps its status as superseded history.
func (ds *DataStore) demote(tx *sqlx.Tx, row *searchRow) error {
	newStatus := row.status()
	if newStatus == trans.StatusPendingApproval {
		newStatus = trans.StatusRejected
	}

	query, args, err := ds.sq.Update("translation").
		Set("current", nil).
		Set("current_since", nil).
		Set("status", newStatus).
		Where(sq.Eq{"id": row.ID.Int64}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.Exec(query, args...)

	return err
}

// setCurrent makes a stored row the current translation.
func (ds *DataStore) setCurrent(tx *sqlx.Tx, id int64, status trans.Status, since time.Time) error {
	query, args, err := ds.sq.Update("translation").
		Set("current", 1).
		Set("current_since", since).
		Set("status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.Exec(query, args...)

	return err
}

// approve upgrades a row's status in place without touching its current
// flag or current_since timestamp.
func (ds *DataStore) approve(tx *sqlx.Tx, id int64) error {
	query, args, err := ds.sq.Update("translation").
		Set("status", trans.StatusApproved).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.Exec(query, args...)

	return err
}
