/*
A service for maintaining a shared corpus of translations. Source strings are
registered per package version from gettext POT templates, translated PO
catalogs are merged into a reviewed per-locale corpus, and the corpus can be
reconstructed back into catalogs for download or review.

Program settings are controlled by a TOML config file. By default, the
program will look for a file called 'translation-corpus.toml' in the current
directory; without one it falls back to a local SQLite database.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/petert82/go-translation-corpus/catalog"
	"github.com/petert82/go-translation-corpus/config"
	"github.com/petert82/go-translation-corpus/datastore"
	"github.com/petert82/go-translation-corpus/events"
	"github.com/petert82/go-translation-corpus/server"
	"github.com/petert82/go-translation-corpus/trans"
)

var configPath string

func loadConfig() (config.Config, error) {
	return config.LoadOrDefault(configPath)
}

func openStore(c config.Config) (*datastore.DataStore, error) {
	db, err := sqlx.Connect(c.DB.Driver, c.DB.ConnectionString())
	if err != nil {
		return nil, err
	}
	return datastore.New(db, c.DB.Driver)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "translation-corpus",
		Short: "Maintains a reviewed corpus of translations",
		Long: `translation-corpus maintains a shared corpus of translations.

Commands:
  init-db     Create or upgrade the database schema and seed locales
  register    Register the source strings of a package version from a POT template
  import      Merge translated PO catalogs into the corpus for one locale
  export      Reconstruct PO catalogs from the corpus
  serve       Start the HTTP API`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config",
		filepath.FromSlash("./translation-corpus.toml"), "Full path and file name to the config file")

	root.AddCommand(
		newInitDbCmd(),
		newRegisterCmd(),
		newImportCmd(),
		newExportCmd(),
		newServeCmd(),
	)

	return root
}

func newInitDbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create or upgrade the database schema and seed locales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			ds, err := openStore(c)
			if err != nil {
				return err
			}

			ver, err := ds.MigrateUp()
			if err != nil {
				return err
			}
			fmt.Printf("Database schema is at version %v\n", ver)

			if c.Locales.SeedFile != "" {
				created, err := ds.SeedLocales(c.Locales.SeedFile)
				if err != nil {
					return err
				}
				fmt.Printf("Created %v locales\n", created)
			}

			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <handle> <version> [template.pot]",
		Short: "Register the source strings of a package version from a POT template",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			ds, err := openStore(c)
			if err != nil {
				return err
			}

			handle, version := args[0], args[1]
			path := filepath.Join(c.Catalog.ImportPath, handle+".pot")
			if len(args) == 3 {
				path = args[2]
			}

			file, err := parseCatalogFile(path)
			if err != nil {
				return err
			}

			count, err := ds.RegisterCatalog(file.Entries, handle, version)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %v strings for %v %v\n", count, handle, version)

			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var reviewer bool

	cmd := &cobra.Command{
		Use:   "import <locale> [catalog.po ...]",
		Short: "Merge translated PO catalogs into the corpus for one locale",
		Long: `Merge translated PO catalogs into the corpus for one locale.

Without file arguments '<import_path>/<locale>.po' is used. Entries flagged
as fuzzy, and every entry when --reviewer is not given, go into the corpus
as pending approval instead of approved.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			ds, err := openStore(c)
			if err != nil {
				return err
			}

			locale, err := ds.GetLocale(args[0])
			if err != nil {
				return err
			}

			files := args[1:]
			if len(files) == 0 {
				files = []string{filepath.Join(c.Catalog.ImportPath, locale.ID+".po")}
			}

			notify := events.NewFanout(c.Notify.Webhooks, c.Notify.Timeout())
			for _, path := range files {
				file, err := parseCatalogFile(path)
				if err != nil {
					return err
				}

				result, evts, err := ds.Import(file.Entries, locale, reviewer, nil)
				if err != nil {
					return err
				}
				events.DispatchAll(notify, evts)
				fmt.Printf("%v: %v\n", path, result)
			}
			fmt.Print(ds.Stats.String())

			return nil
		},
	}
	cmd.Flags().BoolVar(&reviewer, "reviewer", false, "Allow the upload to approve translations")

	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Reconstruct PO catalogs from the corpus",
	}
	cmd.AddCommand(newExportPendingCmd(), newExportPackageCmd())
	return cmd
}

func newExportPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending <locale> [out.po]",
		Short: "Export the strings waiting for review in one locale",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			ds, err := openStore(c)
			if err != nil {
				return err
			}

			locale, err := ds.GetLocale(args[0])
			if err != nil {
				return err
			}

			path := filepath.Join(c.Catalog.ExportPath, locale.ID+"-pending.po")
			if len(args) == 2 {
				path = args[1]
			}

			cursor, err := ds.ExportPending(locale)
			if err != nil {
				return err
			}
			if err = writeCatalogFile(path, locale, cursor); err != nil {
				return err
			}
			fmt.Printf("Wrote %v\n", path)

			return nil
		},
	}
}

func newExportPackageCmd() *cobra.Command {
	var excludeUntranslated bool

	cmd := &cobra.Command{
		Use:   "package <handle> <version> <locale> [out.po]",
		Short: "Export the catalog of a package version for one locale",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			ds, err := openStore(c)
			if err != nil {
				return err
			}

			handle, version := args[0], args[1]
			locale, err := ds.GetLocale(args[2])
			if err != nil {
				return err
			}

			path := filepath.Join(c.Catalog.ExportPath, fmt.Sprintf("%v-%v-%v.po", handle, version, locale.ID))
			if len(args) == 4 {
				path = args[3]
			}

			cursor, err := ds.ExportPackage(handle, version, locale, excludeUntranslated)
			if err != nil {
				return err
			}
			if err = writeCatalogFile(path, locale, cursor); err != nil {
				return err
			}
			fmt.Printf("Wrote %v\n", path)

			return nil
		},
	}
	cmd.Flags().BoolVar(&excludeUntranslated, "exclude-untranslated", false, "Leave untranslated strings out of the catalog")

	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			server.Serve(c)
			return nil
		},
	}
}

func parseCatalogFile(path string) (*catalog.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := catalog.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %v: %w", path, err)
	}

	return file, nil
}

func writeCatalogFile(path string, locale trans.Locale, cursor *datastore.ExportCursor) error {
	entries, err := cursor.Collect()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = catalog.Write(f, locale, entries); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
