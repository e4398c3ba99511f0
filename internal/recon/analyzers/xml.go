package analyzers

import (
	"strings"

	"github.com/beevik/etree"
)

// Element and attribute lookups below match on local names so that files
// written with unusual namespace prefixes still analyze.

// attr returns the value of the first attribute with the given local name.
func attr(e *etree.Element, local string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attr {
		if a.Key == local {
			return a.Value
		}
	}
	return ""
}

func hasAttr(e *etree.Element, local string) bool {
	if e == nil {
		return false
	}
	for _, a := range e.Attr {
		if a.Key == local {
			return true
		}
	}
	return false
}

// child returns the first direct child with the given local name.
func child(e *etree.Element, local string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

// descendants returns every element below root with the given local name, in
// document order.
func descendants(root *etree.Element, local string) []*etree.Element {
	if root == nil {
		return nil
	}
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if c.Tag == local {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// find is descendants starting at a document root.
func find(doc *etree.Document, local string) []*etree.Element {
	if doc == nil || doc.Root() == nil {
		return nil
	}
	root := doc.Root()
	out := descendants(root, local)
	if root.Tag == local {
		out = append([]*etree.Element{root}, out...)
	}
	return out
}

// textOf concatenates the text of every descendant element named local.
func textOf(e *etree.Element, local string) string {
	var sb strings.Builder
	for _, t := range descendants(e, local) {
		sb.WriteString(t.Text())
	}
	return sb.String()
}

// allText concatenates every character data node below e.
func allText(e *etree.Element) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch v := tok.(type) {
			case *etree.CharData:
				sb.WriteString(v.Data)
			case *etree.Element:
				walk(v)
			}
		}
	}
	walk(e)
	return sb.String()
}

// childText returns the trimmed text of the first direct child named local.
func childText(e *etree.Element, local string) string {
	c := child(e, local)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

// hasAncestor reports whether any ancestor of e has one of the local names.
func hasAncestor(e *etree.Element, locals ...string) bool {
	for p := e.Parent(); p != nil; p = p.Parent() {
		for _, l := range locals {
			if p.Tag == l {
				return true
			}
		}
	}
	return false
}

// namespaces returns the namespace URIs declared on e.
func namespaces(e *etree.Element) []string {
	var out []string
	for _, a := range e.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			out = append(out, a.Value)
		}
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
