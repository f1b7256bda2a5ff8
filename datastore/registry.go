package datastore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/petert82/go-translation-corpus/trans"
)

// placeBatchSize bounds multi-row place inserts during registration.
const placeBatchSize = 50

// getTranslatableID looks up a translatable by hash, consulting the id cache
// first. Returns sql.ErrNoRows when the hash is unknown. The cache is never
// written here: rows read through an open transaction may not survive it.
func (ds *DataStore) getTranslatableID(run sqlx.Queryer, hash string) (id int64, err error) {
	ds.mu.Lock()
	id, ok := ds.translatableCache[hash]
	ds.mu.Unlock()
	if ok {
		return id, nil
	}

	query, args, err := ds.sq.Select("id").From("translatable").Where(sq.Eq{"hash": hash}).ToSql()
	if err != nil {
		return 0, err
	}

	row := run.QueryRowx(query, args...)
	if err = row.Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (ds *DataStore) createTranslatable(run execer, e trans.Entry) (id int64, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("translatable", "insert", time.Since(start)) }()

	query, args, err := ds.sq.Insert("translatable").
		Columns("hash", "context", "text", "plural").
		Values(e.Key(), e.Context, e.Text, e.Plural).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := run.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

func (ds *DataStore) createOrGetTranslatable(tx *sqlx.Tx, e trans.Entry) (id int64, err error) {
	id, err = ds.getTranslatableID(tx, e.Key())

	if err == sql.ErrNoRows {
		return ds.createTranslatable(tx, e)
	}

	return id, err
}

// GetPackageVersionID looks a package version up without creating it.
func (ds *DataStore) GetPackageVersionID(handle, version string) (id int64, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("package_version", "get", time.Since(start)) }()

	key := PackageKey{Handle: handle, Version: version}
	ds.mu.Lock()
	id, ok := ds.packageCache[key]
	ds.mu.Unlock()
	if ok {
		return id, nil
	}

	query, args, err := ds.sq.Select("id").From("package_version").
		Where(sq.Eq{"handle": handle, "version": version}).
		ToSql()
	if err != nil {
		return 0, err
	}

	row := ds.db.QueryRow(query, args...)
	if err = row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNoSuchPackageVersion
		}
		return 0, err
	}
	ds.mu.Lock()
	ds.packageCache[key] = id
	ds.mu.Unlock()

	return id, nil
}

func (ds *DataStore) createOrGetPackageVersion(tx *sqlx.Tx, handle, version string) (id int64, err error) {
	key := PackageKey{Handle: handle, Version: version}
	ds.mu.Lock()
	id, ok := ds.packageCache[key]
	ds.mu.Unlock()
	if ok {
		return id, nil
	}

	query, args, err := ds.sq.Select("id").From("package_version").
		Where(sq.Eq{"handle": handle, "version": version}).
		ToSql()
	if err != nil {
		return 0, err
	}
	err = tx.QueryRowx(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		start := time.Now()
		defer func() { ds.Stats.Log("package_version", "insert", time.Since(start)) }()

		query, args, err := ds.sq.Insert("package_version").
			Columns("handle", "version").
			Values(handle, version).
			ToSql()
		if err != nil {
			return 0, err
		}
		result, err := tx.Exec(query, args...)
		if err != nil {
			return 0, err
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	return id, nil
}

// RegisterCatalog records the source strings of a package version: it lazily
// creates unknown translatables and rewrites the version's places of use
// (locations, extracted comments, catalog order). This is the only path that
// creates translatables; importing translations never does.
func (ds *DataStore) RegisterCatalog(sources []trans.Entry, handle, version string) (count int, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("catalog", "register", time.Since(start)) }()

	tx, err := ds.db.Beginx()
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	pvID, err := ds.createOrGetPackageVersion(tx, handle, version)
	if err != nil {
		return 0, err
	}

	query, args, err := ds.sq.Delete("translatable_place").
		Where(sq.Eq{"package_version": pvID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err = tx.Exec(query, args...); err != nil {
		return 0, err
	}

	places := newInsertBatcher(tx, ds.sq, "translatable_place",
		[]string{"translatable", "package_version", "locations", "comments", "sort"}, placeBatchSize)

	// Ids resolved in this transaction. They only reach the shared caches
	// after the commit, so a rolled-back registration leaves no stale ids
	// behind for a retry to trip over.
	resolved := make(map[string]int64)

	for _, e := range sources {
		if e.Text == "" {
			// catalog header entry
			continue
		}
		id, ok := resolved[e.Key()]
		if !ok {
			id, err = ds.createOrGetTranslatable(tx, e)
			if err != nil {
				return count, err
			}
			resolved[e.Key()] = id
		}

		locations, err := json.Marshal(emptyNotNil(e.References))
		if err != nil {
			return count, err
		}
		comments, err := json.Marshal(emptyNotNil(e.Comments))
		if err != nil {
			return count, err
		}

		if err = places.Add(id, pvID, string(locations), string(comments), count); err != nil {
			return count, err
		}
		count++
	}
	if err = places.Flush(); err != nil {
		return count, err
	}

	if err = tx.Commit(); err != nil {
		return count, err
	}
	committed = true

	ds.mu.Lock()
	for hash, id := range resolved {
		ds.translatableCache[hash] = id
	}
	ds.packageCache[PackageKey{Handle: handle, Version: version}] = pvID
	ds.mu.Unlock()

	return count, nil
}

func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// LocaleSeed is one locale definition in the YAML seed file.
type LocaleSeed struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	PluralCount int    `yaml:"plural_count"`
	PluralRule  string `yaml:"plural_rule"`
}

type localeSeedFile struct {
	Locales []LocaleSeed `yaml:"locales"`
}

// SeedLocales creates the locales listed in a YAML seed file, skipping ones
// the corpus already has. Plural metadata left out of the file is filled in
// from the built-in per-language registry.
func (ds *DataStore) SeedLocales(path string) (created int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var seed localeSeedFile
	if err = yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("parsing locale seed file %v: %w", path, err)
	}

	for _, s := range seed.Locales {
		err := ds.CreateLocale(trans.Locale{ID: s.ID, Name: s.Name, PluralCount: s.PluralCount, PluralRule: s.PluralRule})
		switch err {
		case nil:
			created++
		case ErrAlreadyExists:
			// seeding is idempotent
		default:
			return created, err
		}
	}

	return created, nil
}
