// Package xmlutil builds XML-delimited blocks for ruling text handed to
// models, escaping user content so it cannot close or forge tags.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML. Invalid UTF-8 and
// characters outside the XML range become U+FFFD.
func Escape(s string) string {
	var buf strings.Builder
	// strings.Builder never fails a write, so neither does EscapeText.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Attr is one XML attribute.
type Attr struct {
	Name  string
	Value string
}

// Element renders <name a="v">body</name> with escaped attribute values and
// body. Attributes with empty values are omitted.
func Element(name string, body string, attrs ...Attr) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range attrs {
		if a.Value == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(Escape(a.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	b.WriteString(Escape(body))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
	return b.String()
}
