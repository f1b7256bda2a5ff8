package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/petert82/go-translation-corpus/trans"
)

// Write serializes reconstructed corpus entries as a PO catalog for the
// locale. The slot convention is symmetric with parsing: msgstr[k] carries
// plural form k, a non-plural string gets a plain msgstr from slot 0.
func Write(w io.Writer, locale trans.Locale, entries []trans.ExportedEntry) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, "msgid \"\"\nmsgstr \"\"\n")
	writeHeaderField(bw, "Content-Type", "text/plain; charset=UTF-8")
	writeHeaderField(bw, "Language", locale.ID)
	writeHeaderField(bw, "Plural-Forms", locale.GettextHeader())
	writeHeaderField(bw, "PO-Revision-Date", time.Now().UTC().Format("2006-01-02 15:04+0000"))

	for _, e := range entries {
		bw.WriteByte('\n')
		for _, c := range e.Comments {
			fmt.Fprintf(bw, "#. %s\n", c)
		}
		if len(e.References) > 0 {
			fmt.Fprintf(bw, "#: %s\n", strings.Join(e.References, " "))
		}
		if e.Fuzzy && e.Translated {
			fmt.Fprintln(bw, "#, fuzzy")
		}
		if e.Context != "" {
			writeMessage(bw, "msgctxt", e.Context)
		}
		writeMessage(bw, "msgid", e.Text)
		if e.Plural != "" {
			writeMessage(bw, "msgid_plural", e.Plural)
			n := e.Translations.Len()
			if n == 0 {
				n = locale.PluralCount
			}
			for k := 0; k < n; k++ {
				writeMessage(bw, fmt.Sprintf("msgstr[%d]", k), e.Translations.Slot(k))
			}
		} else {
			writeMessage(bw, "msgstr", e.Translations.Slot(0))
		}
	}

	return bw.Flush()
}

func writeHeaderField(w io.Writer, name, value string) {
	fmt.Fprintf(w, "%s\n", quote(name+": "+value+"\n"))
}

func writeMessage(w io.Writer, keyword, text string) {
	fmt.Fprintf(w, "%s %s\n", keyword, quote(text))
}

// quote encodes a string as one double-quoted PO segment.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
