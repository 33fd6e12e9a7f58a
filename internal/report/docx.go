package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrRender marks a template that could not be filled.
var ErrRender = errors.New("render report")

// Data is the value tree fed to a template. A loop tag iterates a slice of
// Data stored under its name; a placeholder prints the value under its name.
type Data map[string]any

// STX and ETX cannot appear in XML text, so they never collide with document content.
const (
	leftDelim  = "\x02"
	rightDelim = "\x03"
)

var (
	partRe      = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)
	paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	textRe      = regexp.MustCompile(`(?s)(<w:t(?:\s[^>]*)?>)(.*?)(</w:t>)`)
	rowRe       = regexp.MustCompile(`(?s)<w:tr[ >].*?</w:tr>`)
	tagRe       = regexp.MustCompile(`\{([#/]?)([A-Za-z_][A-Za-z0-9_.\-]*)\}`)
)

// Renderer fills .docx templates. Tags use single braces: {name} prints a
// value, {#rows}...{/rows} repeats its content once per row. A loop whose
// opening and closing tags sit in the same table row repeats the whole row.
// The zero value is ready to use.
type Renderer struct{}

// Render fills tmpl with data and returns the new document.
func (Renderer) Render(tmpl []byte, data Data) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(tmpl), int64(len(tmpl)))
	if err != nil {
		return nil, fmt.Errorf("%w: open template: %w", ErrRender, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		body, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrRender, f.Name, err)
		}
		if partRe.MatchString(f.Name) {
			body, err = renderPart(f.Name, body, data)
			if err != nil {
				return nil, err
			}
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method, Modified: f.Modified})
		if err != nil {
			return nil, fmt.Errorf("%w: write %s: %w", ErrRender, f.Name, err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("%w: write %s: %w", ErrRender, f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close document: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func renderPart(name string, body []byte, data Data) ([]byte, error) {
	src := compile(heal(string(body)))

	tmpl, err := template.New(name).Delims(leftDelim, rightDelim).Funcs(template.FuncMap{
		"rows":  rowsOf,
		"field": fieldOf,
	}).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrRender, name, err)
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("%w: fill %s: %w", ErrRender, name, err)
	}
	return out.Bytes(), nil
}

// heal merges tags that Word split across several runs of one paragraph, so
// "{item" + "_name}" becomes "{item_name}" in the first run.
func heal(doc string) string {
	return paragraphRe.ReplaceAllStringFunc(doc, healParagraph)
}

func healParagraph(p string) string {
	locs := textRe.FindAllStringSubmatchIndex(p, -1)
	if len(locs) < 2 {
		return p
	}

	texts := make([]string, len(locs))
	for i, loc := range locs {
		texts[i] = p[loc[4]:loc[5]]
	}

	changed := false
	for i := range texts {
		for {
			open := strings.LastIndex(texts[i], "{")
			if open < 0 || strings.Contains(texts[i][open:], "}") {
				break
			}
			j := i + 1
			for ; j < len(texts); j++ {
				k := strings.Index(texts[j], "}")
				if k < 0 {
					continue
				}
				texts[i] += strings.Join(texts[i+1:j], "") + texts[j][:k+1]
				for m := i + 1; m < j; m++ {
					texts[m] = ""
				}
				texts[j] = texts[j][k+1:]
				changed = true
				break
			}
			if j == len(texts) {
				break
			}
		}
	}
	if !changed {
		return p
	}

	var b strings.Builder
	last := 0
	for i, loc := range locs {
		b.WriteString(p[last:loc[0]])
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(texts[i])
		b.WriteString(p[loc[6]:loc[7]])
		last = loc[1]
	}
	b.WriteString(p[last:])
	return b.String()
}

// compile turns tags into template actions. Row loops are expanded first so
// that the range wraps the complete <w:tr> element.
func compile(doc string) string {
	doc = rowRe.ReplaceAllStringFunc(doc, func(row string) string {
		for _, m := range tagRe.FindAllStringSubmatch(row, -1) {
			if m[1] != "#" {
				continue
			}
			open, closing := "{#"+m[2]+"}", "{/"+m[2]+"}"
			if !strings.Contains(row, closing) {
				continue
			}
			row = strings.Replace(row, open, "", 1)
			row = strings.Replace(row, closing, "", 1)
			return action(fmt.Sprintf("range rows . %q", m[2])) + row + action("end")
		}
		return row
	})

	return tagRe.ReplaceAllStringFunc(doc, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		switch m[1] {
		case "#":
			return action(fmt.Sprintf("range rows . %q", m[2]))
		case "/":
			return action("end")
		default:
			return action(fmt.Sprintf("field . $ %q", m[2]))
		}
	})
}

func action(body string) string {
	return leftDelim + body + rightDelim
}

func asData(v any) (Data, bool) {
	switch d := v.(type) {
	case Data:
		return d, true
	case map[string]any:
		return Data(d), true
	default:
		return nil, false
	}
}

// rowsOf returns the loop rows stored under key, or none.
func rowsOf(dot any, key string) []Data {
	d, ok := asData(dot)
	if !ok {
		return nil
	}
	switch rows := d[key].(type) {
	case []Data:
		return rows
	case []map[string]any:
		out := make([]Data, len(rows))
		for i, r := range rows {
			out[i] = Data(r)
		}
		return out
	case []any:
		out := make([]Data, 0, len(rows))
		for _, r := range rows {
			if row, ok := asData(r); ok {
				out = append(out, row)
			}
		}
		return out
	default:
		return nil
	}
}

// fieldOf looks key up in the current row, then in the root, and returns the
// XML-escaped text. Missing values print as empty.
func fieldOf(dot, root any, key string) string {
	for _, scope := range []any{dot, root} {
		d, ok := asData(scope)
		if !ok {
			continue
		}
		if v, ok := d[key]; ok {
			return escape(format(v))
		}
	}
	return ""
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
