/*
Package catalog reads and writes gettext PO/POT catalogs, converting between
the on-disk format and the trans entry types the corpus works with.

Parsing keeps only what the corpus needs from each entry: context, source
texts, translated slots, the fuzzy flag, references and extracted comments.
Translator comments and obsolete entries are dropped.
*/
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/petert82/go-translation-corpus/trans"
)

// File is a parsed PO or POT catalog: the header fields plus the
// translatable entries in file order.
type File struct {
	header  []headerField
	Entries []trans.Entry
}

type headerField struct {
	name  string
	value string
}

// HeaderField returns a header field value by name (case-insensitive), or ""
// when the field is absent.
func (f *File) HeaderField(name string) string {
	for _, h := range f.header {
		if strings.EqualFold(h.name, name) {
			return h.value
		}
	}
	return ""
}

// SetHeaderField replaces or appends a header field, preserving field order.
func (f *File) SetHeaderField(name, value string) {
	for i, h := range f.header {
		if strings.EqualFold(h.name, name) {
			f.header[i].value = value
			return
		}
	}
	f.header = append(f.header, headerField{name: name, value: value})
}

// Language returns the catalog's Language header.
func (f *File) Language() string {
	return f.HeaderField("Language")
}

// Parse reads a PO or POT catalog.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		e          trans.Entry
		msgstr     []string
		target     *string
		collecting bool
		headerDone bool
		lineNo     int
	)

	flush := func() {
		if collecting {
			if e.Text == "" && e.Context == "" && !headerDone {
				headerDone = true
				if len(msgstr) > 0 {
					f.parseHeader(msgstr[0])
				}
			} else if e.Text != "" {
				e.Translations = msgstr
				f.Entries = append(f.Entries, e)
			}
		}
		e = trans.Entry{}
		msgstr = nil
		target = nil
		collecting = false
	}

	// startNew flushes the previous entry once its msgstr section has been
	// left (a new comment, msgctxt or msgid begins the next entry even when
	// the blank separator line is missing).
	startNew := func() {
		if len(msgstr) > 0 {
			flush()
		}
		collecting = true
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()

		case strings.HasPrefix(line, "#~"):
			// obsolete entry, skipped

		case strings.HasPrefix(line, "#"):
			startNew()
			switch {
			case strings.HasPrefix(line, "#,"):
				for _, flag := range strings.Split(line[2:], ",") {
					if strings.TrimSpace(flag) == "fuzzy" {
						e.Fuzzy = true
					}
				}
			case strings.HasPrefix(line, "#:"):
				e.References = append(e.References, strings.Fields(line[2:])...)
			case strings.HasPrefix(line, "#."):
				e.Comments = append(e.Comments, strings.TrimSpace(line[2:]))
			}
			// other comment kinds are ignored

		case strings.HasPrefix(line, "msgctxt"):
			startNew()
			s, err := unquote(strings.TrimSpace(line[len("msgctxt"):]))
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			e.Context = s
			target = &e.Context

		case strings.HasPrefix(line, "msgid_plural"):
			s, err := unquote(strings.TrimSpace(line[len("msgid_plural"):]))
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			e.Plural = s
			target = &e.Plural

		case strings.HasPrefix(line, "msgid"):
			startNew()
			s, err := unquote(strings.TrimSpace(line[len("msgid"):]))
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			e.Text = s
			target = &e.Text

		case strings.HasPrefix(line, "msgstr["):
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, parseErr(lineNo, errors.New("malformed msgstr index"))
			}
			idx, err := strconv.Atoi(line[len("msgstr["):end])
			if err != nil || idx < 0 || idx >= trans.MaxSlots {
				return nil, parseErr(lineNo, fmt.Errorf("bad msgstr index %q", line[len("msgstr["):end]))
			}
			s, err := unquote(strings.TrimSpace(line[end+1:]))
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			for len(msgstr) <= idx {
				msgstr = append(msgstr, "")
			}
			msgstr[idx] = s
			target = &msgstr[idx]

		case strings.HasPrefix(line, "msgstr"):
			s, err := unquote(strings.TrimSpace(line[len("msgstr"):]))
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			msgstr = []string{s}
			target = &msgstr[0]

		case strings.HasPrefix(line, `"`):
			if target == nil {
				return nil, parseErr(lineNo, errors.New("continuation without a message line"))
			}
			s, err := unquote(line)
			if err != nil {
				return nil, parseErr(lineNo, err)
			}
			*target += s

		default:
			return nil, parseErr(lineNo, fmt.Errorf("unexpected input %q", line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()

	return f, nil
}

func parseErr(line int, err error) error {
	return fmt.Errorf("catalog: line %d: %w", line, err)
}

func (f *File) parseHeader(raw string) {
	for _, line := range strings.Split(raw, "\n") {
		name, value, found := strings.Cut(line, ":")
		if !found || name == "" {
			continue
		}
		f.header = append(f.header, headerField{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
	}
}

// unquote decodes one double-quoted PO string segment.
func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("not a quoted string: %s", s)
	}
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", errors.New("trailing backslash in string")
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			// unknown escapes pass through unchanged
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
