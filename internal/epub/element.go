// Package epub assembles EPUB archives from vendor-hosted book content.
//
// The assembler walks the loan's content roster, fixes up each page for
// EPUB compliance, synthesizes the navigation documents when the vendor
// omits them, and zips everything with the mimetype entry first.
package epub

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Element is a mutable XML element tree with ordered attributes and
// children. The OPF, NCX and container documents are built as Element
// trees and serialized in one pass.
type Element struct {
	Tag      string
	Attrs    []xml.Attr
	Text     string
	Children []*Element
}

// NewElement creates an element with attributes given as key/value pairs.
func NewElement(tag string, kv ...string) *Element {
	e := &Element{Tag: tag}
	for i := 0; i+1 < len(kv); i += 2 {
		e.SetAttr(kv[i], kv[i+1])
	}
	return e
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(key, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name.Local == key {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: key}, Value: value})
}

// Attr returns the value of the named attribute, or "".
func (e *Element) Attr(key string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == key {
			return a.Value
		}
	}
	return ""
}

// Add appends children and returns the receiver.
func (e *Element) Add(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Sub creates a child element, appends it and returns it.
func (e *Element) Sub(tag string, kv ...string) *Element {
	c := NewElement(tag, kv...)
	e.Children = append(e.Children, c)
	return c
}

// Find returns the first direct child with the given tag, or nil.
func (e *Element) Find(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// SortChildren orders direct children by the given comparison.
func (e *Element) SortChildren(less func(a, b *Element) bool) {
	sort.SliceStable(e.Children, func(i, j int) bool {
		return less(e.Children[i], e.Children[j])
	})
}

// MarshalXML implements xml.Marshaler.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Tag}, Attr: e.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Encode writes the element as a standalone XML document.
func (e *Element) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := e.MarshalXML(enc, xml.StartElement{}); err != nil {
		return err
	}
	return enc.Flush()
}

// String renders the element document for tests and debug output.
func (e *Element) String() string {
	var b strings.Builder
	if err := e.Encode(&b); err != nil {
		return fmt.Sprintf("<!-- encode error: %v -->", err)
	}
	return b.String()
}
