/*
Package datastore persists the translation corpus: locales, translatable
source strings with their places of use, and per-locale translation records
with review states. It contains the merge engine that imports translation
batches (see import.go) and the reconstructor that exports them again (see
export.go).
*/
package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/petert82/go-translation-corpus/config"
	"github.com/petert82/go-translation-corpus/trans"
)

var (
	// ErrAlreadyExists is returned when creating something that is already
	// in the corpus.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNoSuchLocale is returned when a locale code is not in the corpus.
	ErrNoSuchLocale = errors.New("locale does not exist")
	// ErrNoSuchPackageVersion is returned when a package version is not in
	// the corpus.
	ErrNoSuchPackageVersion = errors.New("package version does not exist")
)

// Adapter provides database-driver-specific setup and schema migrations.
type Adapter interface {
	PostCreate(*sqlx.DB) error
	EnsureVersionTableExists(*sqlx.DB) error
	MigrateUp(*sqlx.DB) (int64, error)
	MigrateDown(*sqlx.DB) (int64, error)
}

type DataStore struct {
	adapter           Adapter
	db                *sqlx.DB
	sq                sq.StatementBuilderType
	translatableCache map[string]int64
	packageCache      map[PackageKey]int64
	// mu guards the id caches and the importLocks map.
	mu          sync.Mutex
	importLocks map[string]*sync.Mutex
	Stats             *Stats
}

// PackageKey identifies one version of a translated package.
type PackageKey struct {
	Handle  string
	Version string
}

// Stats collects per-action timing counters. Datastore methods log into it
// from request handlers, so access is guarded by a mutex.
type Stats struct {
	mu    sync.Mutex
	items map[StatKey]StatItem
}

type StatKey struct {
	Name   string
	Action string
}

type StatItem struct {
	Duration time.Duration
	Count    int
}

func newStats() *Stats {
	return &Stats{items: make(map[StatKey]StatItem)}
}

func (s *Stats) Log(name, action string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[StatKey{Name: name, Action: action}]
	item.Count++
	item.Duration += d
	s.items[StatKey{Name: name, Action: action}] = item
}

func (s *Stats) String() (out string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.items {
		out += fmt.Sprintf("%v  %v '%v' actions took %v total, %v avg\n", v.Count, k.Name, k.Action, v.Duration, v.Duration/time.Duration(v.Count))
	}

	return out
}

// Creates a new datastore using the given database connection. The driver
// parameter is used to select the appropriate database adapter, and should be
// one of the config.DbDriver* constants.
func New(db *sqlx.DB, driver string) (ds *DataStore, err error) {
	adp, err := newAdapter(driver)
	if err != nil {
		return &DataStore{}, err
	}

	ds = &DataStore{
		adapter:           adp,
		db:                db,
		sq:                sq.StatementBuilder.PlaceholderFormat(sq.Question),
		translatableCache: make(map[string]int64),
		packageCache:      make(map[PackageKey]int64),
		importLocks:       make(map[string]*sync.Mutex),
		Stats:             newStats(),
	}

	err = ds.adapter.PostCreate(ds.db)
	if err != nil {
		return ds, err
	}

	return ds, nil
}

func newAdapter(driver string) (adp Adapter, err error) {
	switch driver {
	case config.DbDriverSqlite3:
		adp = &Sqlite3Adapter{}
	case config.DbDriverMysql:
		adp = &MysqlAdapter{}
	}

	if adp == nil {
		return nil, fmt.Errorf("no adapter available for database driver '%v'", driver)
	}

	return adp, nil
}

// MigrateUp brings the database schema up to the latest version.
func (ds *DataStore) MigrateUp() (version int64, err error) {
	if err = ds.adapter.EnsureVersionTableExists(ds.db); err != nil {
		return 0, err
	}
	return ds.adapter.MigrateUp(ds.db)
}

// MigrateDown reverts all schema migrations.
func (ds *DataStore) MigrateDown() (version int64, err error) {
	if err = ds.adapter.EnsureVersionTableExists(ds.db); err != nil {
		return 0, err
	}
	return ds.adapter.MigrateDown(ds.db)
}

// importLock returns the mutex that serializes imports for one locale.
// Imports for different locales run in parallel; two imports for the same
// locale must not both re-point "current" rows for the same translatable.
func (ds *DataStore) importLock(localeID string) *sync.Mutex {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	l, ok := ds.importLocks[localeID]
	if !ok {
		l = &sync.Mutex{}
		ds.importLocks[localeID] = l
	}
	return l
}

// GetLocale fetches a locale by its code.
func (ds *DataStore) GetLocale(id string) (l trans.Locale, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("locale", "get", time.Since(start)) }()

	query, args, err := ds.sq.Select("id", "name", "plural_count", "plural_rule").
		From("locale").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return l, err
	}

	err = ds.db.Get(&l, query, args...)
	if err == sql.ErrNoRows {
		return l, ErrNoSuchLocale
	}

	return l, err
}

// GetLocaleList fetches all available locales.
func (ds *DataStore) GetLocaleList() (locales []trans.Locale, err error) {
	start := time.Now()
	defer func() { ds.Stats.Log("locale", "get", time.Since(start)) }()

	query, _, err := ds.sq.Select("id", "name", "plural_count", "plural_rule").
		From("locale").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	err = ds.db.Select(&locales, query)

	return locales, err
}

// CreateLocale adds a new locale to the corpus. Missing plural metadata is
// filled in from the built-in per-language registry.
func (ds *DataStore) CreateLocale(l trans.Locale) error {
	start := time.Now()
	defer func() { ds.Stats.Log("locale", "insert", time.Since(start)) }()

	if l.PluralCount == 0 {
		if pf, ok := trans.PluralForms(l.ID); ok {
			l.PluralCount = pf.Count
			if l.PluralRule == "" {
				l.PluralRule = pf.Rule
			}
		} else {
			l.PluralCount = 2
			if l.PluralRule == "" {
				l.PluralRule = "n != 1"
			}
		}
	}
	if err := l.Valid(); err != nil {
		return err
	}

	if _, err := ds.GetLocale(l.ID); err == nil {
		return ErrAlreadyExists
	} else if err != ErrNoSuchLocale {
		return err
	}

	query, args, err := ds.sq.Insert("locale").
		Columns("id", "name", "plural_count", "plural_rule").
		Values(l.ID, l.Name, l.PluralCount, l.PluralRule).
		ToSql()
	if err != nil {
		return err
	}

	_, err = ds.db.Exec(query, args...)

	return err
}
