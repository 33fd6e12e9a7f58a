package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Column is one table column of a built-in template.
type Column struct {
	Header string
	Field  string
}

// Built-in layouts used when no template file is configured.
var (
	SupplyColumns = []Column{
		{Header: "Item Name", Field: "item_name"},
		{Header: "Locker", Field: "locker"},
		{Header: "Unit", Field: "unit"},
		{Header: "Quantity", Field: "quantity"},
		{Header: "Trend", Field: "trend"},
		{Header: "Change %", Field: "change_pct"},
	}
	ListColumns = []Column{
		{Header: "Item Name", Field: "item_name"},
		{Header: "Locker", Field: "locker"},
		{Header: "Unit", Field: "unit"},
		{Header: "Quantity", Field: "quantity"},
	}
	EquipmentColumns = []Column{
		{Header: "Equipment", Field: "equipment_name"},
		{Header: "Count", Field: "count"},
		{Header: "Status", Field: "status"},
		{Header: "Department", Field: "Department"},
	}
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

	tableProps = `<w:tblPr><w:tblW w:w="0" w:type="auto"/><w:tblBorders>` +
		`<w:top w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:left w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:bottom w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:right w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:insideH w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:insideV w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`</w:tblBorders></w:tblPr>`
)

// BuildTemplate returns a minimal .docx with a title, a generated-at line
// and a table whose body row loops over "items".
func BuildTemplate(title string, columns []Column) ([]byte, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: template needs at least one column", ErrRender)
	}

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	doc.WriteString(`<w:p><w:r><w:rPr><w:b/><w:sz w:val="32"/></w:rPr><w:t>` + escape(title) + `</w:t></w:r></w:p>`)
	doc.WriteString(`<w:p><w:r><w:t xml:space="preserve">Generated {generated_at}</w:t></w:r></w:p>`)

	doc.WriteString(`<w:tbl>` + tableProps + `<w:tr>`)
	for _, col := range columns {
		doc.WriteString(cell(`<w:rPr><w:b/></w:rPr>`, escape(col.Header)))
	}
	doc.WriteString(`</w:tr><w:tr>`)
	for i, col := range columns {
		text := "{" + col.Field + "}"
		if i == 0 {
			text = "{#items}" + text
		}
		if i == len(columns)-1 {
			text += "{/items}"
		}
		doc.WriteString(cell("", text))
	}
	doc.WriteString(`</w:tr></w:tbl><w:sectPr/></w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", doc.String()},
	}
	for _, part := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: part.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("%w: build template: %w", ErrRender, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("%w: build template: %w", ErrRender, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: build template: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func cell(runProps, text string) string {
	return `<w:tc><w:p><w:r>` + runProps + `<w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:tc>`
}

// loadTemplate reads path, or builds the default layout when path is empty.
func loadTemplate(path, title string, columns []Column) ([]byte, error) {
	if path == "" {
		return BuildTemplate(title, columns)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: template file: %w", ErrRender, err)
	}
	return body, nil
}
