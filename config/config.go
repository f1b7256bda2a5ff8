/*
Package config implements TOML config file handling for the translation
corpus.

Normally it will be used by simply passing a config file name to the Load
function to obtain a Config struct.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DbDriverSqlite3 = "sqlite3"
	DbDriverMysql   = "mysql"
)

// Config represents the parsed configuration for the translation corpus.
type Config struct {
	DB      DbConfig      `toml:"database"`
	Server  ServerConfig  `toml:"server"`
	Catalog CatalogConfig `toml:"catalog"`
	Notify  NotifyConfig  `toml:"notify"`
	Locales LocalesConfig `toml:"locales"`
}

// valid checks if the Config is valid in its current state.
func (c *Config) valid() error {
	if c.DB.Driver != DbDriverSqlite3 && c.DB.Driver != DbDriverMysql {
		drivers := []string{DbDriverSqlite3, DbDriverMysql}
		return fmt.Errorf("config: invalid database.driver value. (Must be one of: '%v')", strings.Join(drivers, ", "))
	}
	if c.DB.Driver == DbDriverSqlite3 && len(c.DB.File) == 0 {
		return errors.New("config: missing database.file value")
	}
	if c.DB.Driver == DbDriverMysql {
		if len(c.DB.Host) == 0 {
			return errors.New("config: missing database.host value")
		}
		if len(c.DB.Name) == 0 {
			return errors.New("config: missing database.name value")
		}
		if len(c.DB.User) == 0 {
			return errors.New("config: missing database.user value")
		}
		if c.DB.Port < 0 {
			return errors.New("config: invalid database.port value")
		}
	}
	if c.Server.Port < 0 {
		return errors.New("config: server.port is invalid")
	}
	if len(c.Catalog.ImportPath) == 0 {
		return errors.New("config: missing catalog.import_path value")
	}
	if len(c.Catalog.ExportPath) == 0 {
		return errors.New("config: missing catalog.export_path value")
	}
	if c.Notify.TimeoutSeconds < 0 {
		return errors.New("config: notify.timeout_seconds is invalid")
	}
	return nil
}

// DbConfig contains database connection configuration.
type DbConfig struct {
	// Must be one of the DbDriver* constants
	Driver string
	// When driver is sqlite3, this is the path to the database file
	File     string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port that the server should run on.
	Port int
}

// CatalogConfig contains PO catalog import/export configuration.
type CatalogConfig struct {
	// Path to import PO files from
	ImportPath string `toml:"import_path"`
	// Path to export PO files to
	ExportPath string `toml:"export_path"`
}

// NotifyConfig configures where post-import events are delivered.
type NotifyConfig struct {
	// Webhook URLs that receive a JSON POST per event
	Webhooks []string `toml:"webhooks"`
	// Timeout for each webhook request
	TimeoutSeconds int `toml:"timeout_seconds"`
}

func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// LocalesConfig points at the YAML locale seed file used by init-db.
type LocalesConfig struct {
	SeedFile string `toml:"seed_file"`
}

// Gets a connection string for this config.
func (d *DbConfig) ConnectionString() string {
	cStr := ""
	switch d.Driver {
	case DbDriverMysql:
		cStr = fmt.Sprintf("%v:%v@tcp(%v:%v)/%v?parseTime=true&charset=utf8mb4", d.User, d.Password, d.Host, d.Port, d.Name)
	case DbDriverSqlite3:
		cStr = d.File
	}
	return cStr
}

// Creates a new Config with some default values.
func new() Config {
	c := Config{
		DB: DbConfig{
			Driver: DbDriverSqlite3,
			File:   filepath.FromSlash("./translations.db"),
			Port:   3306, // MySQL default port
		},
		Server: ServerConfig{
			Port: 8181,
		},
		Catalog: CatalogConfig{
			ImportPath: filepath.FromSlash("./po-in"),
			ExportPath: filepath.FromSlash("./po-out"),
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 10,
		},
	}
	return c
}

// Loads config from a TOML file and checks its validity.
func Load(file string) (Config, error) {
	conf := new()
	_, err := toml.DecodeFile(file, &conf)
	if err != nil {
		return conf, err
	}

	if err = conf.valid(); err != nil {
		return conf, err
	}

	return conf, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadOrDefault(file string) (Config, error) {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return new(), nil
	}
	return Load(file)
}
