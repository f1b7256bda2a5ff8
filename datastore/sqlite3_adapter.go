package datastore

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Sqlite3Adapter provides support for SQLite3 databases.
type Sqlite3Adapter struct{}

func (s Sqlite3Adapter) EnsureVersionTableExists(db *sqlx.DB) (err error) {
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS "schema_migrations" ("version" INTEGER PRIMARY KEY NOT NULL)`)
	if err != nil {
		return err
	}

	var count int
	err = db.Get(&count, `SELECT COUNT(*) FROM schema_migrations`)
	if err != nil {
		return err
	}
	switch {
	case count == 0:
		_, err = db.Exec(`INSERT INTO schema_migrations (version) VALUES (0)`)
	case count > 1:
		err = errors.New("too many rows in schema_migrations table")
	}

	return err
}

func (s Sqlite3Adapter) PostCreate(db *sqlx.DB) (err error) {
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return err
	}
	// Faster than using default journal file
	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return err
	}
	// Default (full) is slower
	_, err = db.Exec("PRAGMA synchronous = NORMAL")
	if err != nil {
		return err
	}

	return nil
}

func (s Sqlite3Adapter) up() []string {
	return []string{
		// 1
		`
CREATE TABLE "locale" (
    "id" TEXT PRIMARY KEY,
    "name" TEXT NOT NULL DEFAULT '',
    "plural_count" INTEGER NOT NULL DEFAULT 2,
    "plural_rule" TEXT NOT NULL DEFAULT ''
);
CREATE TABLE "translatable" (
    "id" INTEGER PRIMARY KEY AUTOINCREMENT,
    "hash" TEXT NOT NULL UNIQUE,
    "context" TEXT NOT NULL DEFAULT '',
    "text" TEXT NOT NULL,
    "plural" TEXT NOT NULL DEFAULT ''
);
CREATE INDEX "translatable_text" ON "translatable" ("text");
CREATE TABLE "translation" (
    "id" INTEGER PRIMARY KEY AUTOINCREMENT,
    "translatable" INTEGER NOT NULL REFERENCES "translatable"("id") ON UPDATE CASCADE ON DELETE CASCADE,
    "locale" TEXT NOT NULL REFERENCES "locale"("id") ON UPDATE CASCADE ON DELETE CASCADE,
    "created_on" TIMESTAMP NOT NULL,
    "created_by" INTEGER,
    "current" INTEGER,
    "current_since" TIMESTAMP,
    "status" INTEGER NOT NULL DEFAULT 0,
    "text0" TEXT NOT NULL DEFAULT '',
    "text1" TEXT NOT NULL DEFAULT '',
    "text2" TEXT NOT NULL DEFAULT '',
    "text3" TEXT NOT NULL DEFAULT '',
    "text4" TEXT NOT NULL DEFAULT '',
    "text5" TEXT NOT NULL DEFAULT ''
);
CREATE INDEX "translation_translatable_locale" ON "translation" ("translatable","locale");
CREATE INDEX "translation_locale_status" ON "translation" ("locale","status");
CREATE UNIQUE INDEX "translation_current" ON "translation" ("translatable","locale","current");
CREATE TABLE "package_version" (
    "id" INTEGER PRIMARY KEY AUTOINCREMENT,
    "handle" TEXT NOT NULL,
    "version" TEXT NOT NULL
);
CREATE UNIQUE INDEX "package_version_handle_version" ON "package_version" ("handle","version");
CREATE TABLE "translatable_place" (
    "translatable" INTEGER NOT NULL REFERENCES "translatable"("id") ON UPDATE CASCADE ON DELETE CASCADE,
    "package_version" INTEGER NOT NULL REFERENCES "package_version"("id") ON UPDATE CASCADE ON DELETE CASCADE,
    "locations" TEXT NOT NULL DEFAULT '[]',
    "comments" TEXT NOT NULL DEFAULT '[]',
    "sort" INTEGER NOT NULL DEFAULT 0,
    UNIQUE ("package_version", "translatable")
);
CREATE INDEX "translatable_place_translatable" ON "translatable_place" ("translatable");
`,
	}
}

func (s Sqlite3Adapter) down() []string {
	return []string{
		// 1
		`
DROP TABLE translatable_place;
DROP TABLE package_version;
DROP TABLE translation;
DROP TABLE translatable;
DROP TABLE locale;
`,
	}
}

func (s Sqlite3Adapter) MigrateUp(db *sqlx.DB) (version int64, err error) {
	startVer, err := s.version(db)
	if err != nil {
		return version, err
	}

	for i, query := range s.up() {
		migTo := int64(i + 1)
		if migTo <= startVer {
			version = migTo
			continue
		}

		_, err = db.Exec(query)
		if err != nil {
			return version, err
		}

		err = s.updateVersion(migTo, db)
		if err != nil {
			return version, err
		}

		version = migTo
	}

	return version, err
}

func (s Sqlite3Adapter) MigrateDown(db *sqlx.DB) (version int64, err error) {
	startVer, err := s.version(db)
	if err != nil {
		return version, err
	}

	down := s.down()
	for i := len(down) - 1; i >= 0; i-- {
		query := down[i]
		migVer := int64(i + 1) // The version of the Down migration we will apply
		migTo := int64(i)      // The version we will end up at

		// Skip migrations for newer versions
		if migVer > startVer {
			version = startVer
			continue
		}

		_, err = db.Exec(query)
		if err != nil {
			return version, err
		}

		err = s.updateVersion(migTo, db)
		if err != nil {
			return version, err
		}

		version = migTo
	}

	return version, err
}

func (s Sqlite3Adapter) version(db *sqlx.DB) (version int64, err error) {
	row := db.QueryRow("SELECT version FROM schema_migrations")
	err = row.Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		return 0, err
	default:
		return version, nil
	}
}

func (s Sqlite3Adapter) updateVersion(version int64, db *sqlx.DB) (err error) {
	_, err = db.Exec("UPDATE schema_migrations SET version = ?", int64(version))

	return err
}
