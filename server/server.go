package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/petert82/go-translation-corpus/catalog"
	"github.com/petert82/go-translation-corpus/config"
	"github.com/petert82/go-translation-corpus/datastore"
	"github.com/petert82/go-translation-corpus/events"
	"github.com/petert82/go-translation-corpus/trans"
)

const poContentType = "text/x-gettext-translation; charset=utf-8"

func checkFatal(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func checkHttpWithStatus(e error, w http.ResponseWriter, status int) (hadError bool) {
	if e != nil {
		w.WriteHeader(status)

		errMsg := e.Error()
		// Don't expose the 'sql: no rows in result set' message to the user
		if status == http.StatusNotFound && e == sql.ErrNoRows {
			errMsg = "not found"
		}

		jsonErr := struct {
			Error string `json:"error"`
		}{
			Error: errMsg,
		}
		enc := json.NewEncoder(w)
		enc.Encode(jsonErr)

		return true
	}
	return false
}

func checkHttp(e error, w http.ResponseWriter) (hadError bool) {
	status := http.StatusInternalServerError
	switch e {
	case sql.ErrNoRows, datastore.ErrNoSuchLocale, datastore.ErrNoSuchPackageVersion:
		status = http.StatusNotFound
	}
	return checkHttpWithStatus(e, w, status)
}

// Hands the shared datastore to a request handler. The datastore must be
// shared: it carries the per-locale import locks.
func handleWithDatastore(ds *datastore.DataStore, notify events.Dispatcher, f func(http.ResponseWriter, *http.Request, *datastore.DataStore, events.Dispatcher)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f(w, r, ds, notify)
	}
}

func setJsonHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h.ServeHTTP(w, r)
	})
}

// getLocale resolves the {locale} route variable, writing a 404 when the
// locale doesn't exist.
func getLocale(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore) (trans.Locale, bool) {
	l, err := ds.GetLocale(mux.Vars(r)["locale"])
	if checkHttp(err, w) {
		return trans.Locale{}, false
	}
	return l, true
}

// Gets list of available locales
func getLocalesHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	ls, err := ds.GetLocaleList()
	if checkHttp(err, w) {
		return
	}

	enc := json.NewEncoder(w)
	checkHttp(enc.Encode(ls), w)
}

// Creates a new locale
func createLocaleHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	id := mux.Vars(r)["locale"]

	var content struct {
		Name        string `json:"name"`
		PluralCount int    `json:"pluralCount"`
		PluralRule  string `json:"pluralRule"`
	}

	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&content)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not decode request (%v)", err.Error()), http.StatusBadRequest)
		return
	}

	err = ds.CreateLocale(trans.Locale{ID: id, Name: content.Name, PluralCount: content.PluralCount, PluralRule: content.PluralRule})
	switch {
	case err == datastore.ErrAlreadyExists:
		_ = checkHttpWithStatus(err, w, http.StatusConflict)
		return

	case checkHttp(err, w):
		return
	}

	w.Write([]byte("{\"result\":\"ok\"}\n"))
}

// Merges an uploaded catalog into the corpus for one locale.
// The request body is a gettext PO file; ?reviewer=1 marks the upload as
// coming from someone allowed to approve translations.
func importHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, notify events.Dispatcher) {
	locale, ok := getLocale(w, r, ds)
	if !ok {
		return
	}

	file, err := catalog.Parse(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not parse catalog (%v)", err.Error()), http.StatusBadRequest)
		return
	}

	reviewer := r.URL.Query().Get("reviewer") == "1"
	result, evts, err := ds.Import(file.Entries, locale, reviewer, nil)
	if checkHttp(err, w) {
		return
	}
	events.DispatchAll(notify, evts)

	enc := json.NewEncoder(w)
	checkHttp(enc.Encode(result), w)
}

// Registers the source strings of a package version from an uploaded POT
// template.
func registerCatalogHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	handle := mux.Vars(r)["handle"]
	version := mux.Vars(r)["version"]

	file, err := catalog.Parse(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not parse catalog (%v)", err.Error()), http.StatusBadRequest)
		return
	}

	count, err := ds.RegisterCatalog(file.Entries, handle, version)
	if checkHttp(err, w) {
		return
	}

	var output struct {
		Registered int `json:"registered"`
	}
	output.Registered = count

	enc := json.NewEncoder(w)
	checkHttp(enc.Encode(output), w)
}

// writeExport drains an export cursor to the response, as a PO file when
// ?format=po is given and as JSON otherwise.
func writeExport(w http.ResponseWriter, r *http.Request, locale trans.Locale, cursor *datastore.ExportCursor) {
	entries, err := cursor.Collect()
	if checkHttp(err, w) {
		return
	}

	if r.URL.Query().Get("format") == "po" {
		w.Header().Set("Content-Type", poContentType)
		checkHttp(catalog.Write(w, locale, entries), w)
		return
	}

	if entries == nil {
		entries = []trans.ExportedEntry{}
	}
	enc := json.NewEncoder(w)
	checkHttp(enc.Encode(entries), w)
}

// Gets the strings waiting for review in one locale
func getPendingHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	locale, ok := getLocale(w, r, ds)
	if !ok {
		return
	}

	cursor, err := ds.ExportPending(locale)
	if checkHttp(err, w) {
		return
	}

	writeExport(w, r, locale, cursor)
}

// Exports the catalog of a package version for one locale
func exportPackageHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	locale, ok := getLocale(w, r, ds)
	if !ok {
		return
	}
	handle := mux.Vars(r)["handle"]
	version := mux.Vars(r)["version"]
	excludeUntranslated := r.URL.Query().Get("excludeUntranslated") == "1"

	cursor, err := ds.ExportPackage(handle, version, locale, excludeUntranslated)
	if checkHttp(err, w) {
		return
	}

	writeExport(w, r, locale, cursor)
}

// Fills an uploaded catalog with the locale's current translations and
// returns it as a PO file.
func fillCatalogHandler(w http.ResponseWriter, r *http.Request, ds *datastore.DataStore, _ events.Dispatcher) {
	locale, ok := getLocale(w, r, ds)
	if !ok {
		return
	}

	file, err := catalog.Parse(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not parse catalog (%v)", err.Error()), http.StatusBadRequest)
		return
	}

	filled, err := ds.FillCatalog(file.Entries, locale)
	if checkHttp(err, w) {
		return
	}

	w.Header().Set("Content-Type", poContentType)
	checkHttp(catalog.Write(w, locale, filled), w)
}

func newRouter(ds *datastore.DataStore, notify events.Dispatcher) *mux.Router {
	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/locales", handleWithDatastore(ds, notify, getLocalesHandler)).Methods("GET")
	r.HandleFunc("/locales/{locale}", handleWithDatastore(ds, notify, createLocaleHandler)).Methods("POST")
	r.HandleFunc("/locales/{locale}/import", handleWithDatastore(ds, notify, importHandler)).Methods("POST")
	r.HandleFunc("/locales/{locale}/pending", handleWithDatastore(ds, notify, getPendingHandler)).Methods("GET")
	r.HandleFunc("/locales/{locale}/fill", handleWithDatastore(ds, notify, fillCatalogHandler)).Methods("POST")
	r.HandleFunc("/packages/{handle}/{version}/pot", handleWithDatastore(ds, notify, registerCatalogHandler)).Methods("POST")
	r.HandleFunc("/packages/{handle}/{version}/locales/{locale}/export", handleWithDatastore(ds, notify, exportPackageHandler)).Methods("GET")
	return r
}

func Serve(c config.Config) {
	db, err := sqlx.Connect(c.DB.Driver, c.DB.ConnectionString())
	checkFatal(err)

	ds, err := datastore.New(db, c.DB.Driver)
	checkFatal(err)

	r := newRouter(ds, events.NewFanout(c.Notify.Webhooks, c.Notify.Timeout()))
	rWithMiddleWares := handlers.CombinedLoggingHandler(os.Stdout, setJsonHeaders(r))

	fmt.Printf("Listening on port %v\n", c.Server.Port)
	checkFatal(http.ListenAndServe(fmt.Sprintf(":%v", c.Server.Port), rWithMiddleWares))
}
