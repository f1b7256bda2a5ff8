package datastore

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// MysqlAdapter provides support for MySQL databases.
type MysqlAdapter struct{}

func (a MysqlAdapter) EnsureVersionTableExists(db *sqlx.DB) (err error) {
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY NOT NULL)")
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

func (a MysqlAdapter) PostCreate(db *sqlx.DB) (err error) {
	_, err = db.Exec("SET SESSION sql_mode = 'STRICT_ALL_TABLES'")

	return err
}

func (a MysqlAdapter) up() []string {
	return []string{
		// 1
		`CREATE TABLE locale (
    id VARCHAR(16) NOT NULL,
    name VARCHAR(100) NOT NULL DEFAULT '',
    plural_count TINYINT NOT NULL DEFAULT 2,
    plural_rule VARCHAR(400) NOT NULL DEFAULT '',
    PRIMARY KEY (id)
) ENGINE = InnoDB DEFAULT CHARSET = utf8mb4`,
		// 2
		`CREATE TABLE translatable (
    id INT UNSIGNED NOT NULL AUTO_INCREMENT,
    hash CHAR(32) NOT NULL,
    context VARCHAR(255) NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    plural TEXT NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY translatable_hash (hash),
    KEY translatable_text (text(191))
) ENGINE = InnoDB DEFAULT CHARSET = utf8mb4`,
		// 3
		`CREATE TABLE translation (
    id INT UNSIGNED NOT NULL AUTO_INCREMENT,
    translatable INT UNSIGNED NOT NULL,
    locale VARCHAR(16) NOT NULL,
    created_on DATETIME NOT NULL,
    created_by INT UNSIGNED NULL,
    current TINYINT UNSIGNED NULL,
    current_since DATETIME NULL,
    status TINYINT NOT NULL DEFAULT 0,
    text0 TEXT NOT NULL,
    text1 TEXT NOT NULL,
    text2 TEXT NOT NULL,
    text3 TEXT NOT NULL,
    text4 TEXT NOT NULL,
    text5 TEXT NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY translation_current (translatable, locale, current),
    KEY translation_translatable_locale (translatable, locale),
    KEY translation_locale_status (locale, status),
    CONSTRAINT translation_translatable FOREIGN KEY (translatable) REFERENCES translatable (id) ON UPDATE CASCADE ON DELETE CASCADE,
    CONSTRAINT translation_locale FOREIGN KEY (locale) REFERENCES locale (id) ON UPDATE CASCADE ON DELETE CASCADE
) ENGINE = InnoDB DEFAULT CHARSET = utf8mb4`,
		// 4
		`CREATE TABLE package_version (
    id INT UNSIGNED NOT NULL AUTO_INCREMENT,
    handle VARCHAR(128) NOT NULL,
    version VARCHAR(64) NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY package_version_handle_version (handle, version)
) ENGINE = InnoDB DEFAULT CHARSET = utf8mb4`,
		// 5
		`CREATE TABLE translatable_place (
    translatable INT UNSIGNED NOT NULL,
    package_version INT UNSIGNED NOT NULL,
    locations TEXT NOT NULL,
    comments TEXT NOT NULL,
    sort INT NOT NULL DEFAULT 0,
    UNIQUE KEY translatable_place_pv_translatable (package_version, translatable),
    KEY translatable_place_translatable (translatable),
    CONSTRAINT translatable_place_translatable FOREIGN KEY (translatable) REFERENCES translatable (id) ON UPDATE CASCADE ON DELETE CASCADE,
    CONSTRAINT translatable_place_package_version FOREIGN KEY (package_version) REFERENCES package_version (id) ON UPDATE CASCADE ON DELETE CASCADE
) ENGINE = InnoDB DEFAULT CHARSET = utf8mb4`,
	}
}

func (a MysqlAdapter) down() []string {
	return []string{
		// 1
		`DROP TABLE locale`,
		// 2
		`DROP TABLE translatable`,
		// 3
		`DROP TABLE translation`,
		// 4
		`DROP TABLE package_version`,
		// 5
		`DROP TABLE translatable_place`,
	}
}

func (a MysqlAdapter) MigrateUp(db *sqlx.DB) (version int64, err error) {
	startVer, err := a.version(db)
	if err != nil {
		return version, err
	}

	for i, query := range a.up() {
		migTo := int64(i + 1)
		if migTo <= startVer {
			version = migTo
			continue
		}

		_, err = db.Exec(query)
		if err != nil {
			return version, err
		}

		err = a.updateVersion(migTo, db)
		if err != nil {
			return version, err
		}

		version = migTo
	}

	return version, err
}

func (a MysqlAdapter) MigrateDown(db *sqlx.DB) (version int64, err error) {
	startVer, err := a.version(db)
	if err != nil {
		return version, err
	}

	down := a.down()
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

		err = a.updateVersion(migTo, db)
		if err != nil {
			return version, err
		}

		version = migTo
	}

	return version, err
}

func (a MysqlAdapter) version(db *sqlx.DB) (version int64, err error) {
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

func (a MysqlAdapter) updateVersion(version int64, db *sqlx.DB) (err error) {
	_, err = db.Exec("UPDATE schema_migrations SET version = ?", int64(version))

	return err
}
