// Package locator finds UI elements whose markup this program does not control.
// A logical target (the password field, the publish button) is described by a
// Set: an ordered list of alternative Candidates. The Resolver tries them in
// order and reports which one matched, so a changed selector degrades into a
// fallback instead of a hard failure.
package locator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags how a Candidate describes its element.
type Kind string

const (
	// KindText matches an element whose normalized text equals Value.
	KindText Kind = "text"
	// KindTextContains matches an element whose normalized text contains Value.
	KindTextContains Kind = "text-contains"
	KindCSS          Kind = "css"
	KindXPath        Kind = "xpath"
	// KindInputType matches <input type=Value>.
	KindInputType Kind = "input-type"
	// KindPlaceholder matches an input or textarea whose placeholder contains Value.
	KindPlaceholder Kind = "placeholder"
	// KindAttrContains matches an element whose Attr attribute contains Value.
	KindAttrContains Kind = "attr-contains"
)

// Candidate is one way of finding a logical UI element.
type Candidate struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Value string `json:"value" yaml:"value"`
	// Attr names the attribute for KindAttrContains.
	Attr string `json:"attr,omitempty" yaml:"attr,omitempty"`
	// Tag optionally restricts text and attribute candidates to one element name.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

func Text(value string) Candidate         { return Candidate{Kind: KindText, Value: value} }
func TextContains(value string) Candidate { return Candidate{Kind: KindTextContains, Value: value} }
func CSS(query string) Candidate          { return Candidate{Kind: KindCSS, Value: query} }
func XPath(query string) Candidate        { return Candidate{Kind: KindXPath, Value: query} }
func InputType(t string) Candidate        { return Candidate{Kind: KindInputType, Value: t} }
func Placeholder(value string) Candidate  { return Candidate{Kind: KindPlaceholder, Value: value} }

// AttrContains matches elements whose attr attribute contains value.
func AttrContains(attr, value string) Candidate {
	return Candidate{Kind: KindAttrContains, Attr: attr, Value: value}
}

// On restricts a text or attribute candidate to elements named tag.
func (c Candidate) On(tag string) Candidate {
	c.Tag = tag
	return c
}

// String renders the candidate for diagnostics.
func (c Candidate) String() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if c.Tag != "" {
		b.WriteString("<" + c.Tag + ">")
	}
	if c.Attr != "" {
		b.WriteString("[" + c.Attr + "]")
	}
	b.WriteString("=")
	b.WriteString(fmt.Sprintf("%q", c.Value))
	return b.String()
}

// QueryKind is the query language a compiled Selector uses.
type QueryKind int

const (
	QueryCSS QueryKind = iota
	QueryXPath
)

func (k QueryKind) String() string {
	if k == QueryXPath {
		return "xpath"
	}
	return "css"
}

// Selector is a Candidate compiled into a concrete CSS or XPath query.
type Selector struct {
	Query string
	Kind  QueryKind
}

// Compile turns the candidate into a Selector.
func (c Candidate) Compile() (Selector, error) {
	if strings.TrimSpace(c.Value) == "" {
		return Selector{}, fmt.Errorf("locator: %s candidate has an empty value", c.Kind)
	}
	tag := c.Tag
	if tag == "" {
		tag = "*"
	}

	switch c.Kind {
	case KindCSS:
		return Selector{Query: c.Value, Kind: QueryCSS}, nil
	case KindXPath:
		return Selector{Query: c.Value, Kind: QueryXPath}, nil
	case KindText:
		// Deepest element whose whole text equals the value, so a wrapping
		// <div> does not shadow the <button> the user actually sees.
		lit := xpathLiteral(c.Value)
		q := fmt.Sprintf("//%s[normalize-space(.)=%s][not(.//*[normalize-space(.)=%s])]", tag, lit, lit)
		return Selector{Query: q, Kind: QueryXPath}, nil
	case KindTextContains:
		lit := xpathLiteral(c.Value)
		q := fmt.Sprintf("//%s[contains(normalize-space(.),%s)][not(.//*[contains(normalize-space(.),%s)])]", tag, lit, lit)
		return Selector{Query: q, Kind: QueryXPath}, nil
	case KindInputType:
		return Selector{Query: fmt.Sprintf(`input[type="%s"]`, cssEscape(c.Value)), Kind: QueryCSS}, nil
	case KindPlaceholder:
		v := cssEscape(c.Value)
		q := fmt.Sprintf(`input[placeholder*="%s"], textarea[placeholder*="%s"], [data-placeholder*="%s"]`, v, v, v)
		return Selector{Query: q, Kind: QueryCSS}, nil
	case KindAttrContains:
		if c.Attr == "" {
			return Selector{}, fmt.Errorf("locator: attr-contains candidate %q has no attribute name", c.Value)
		}
		prefix := c.Tag
		return Selector{Query: fmt.Sprintf(`%s[%s*="%s"]`, prefix, c.Attr, cssEscape(c.Value)), Kind: QueryCSS}, nil
	default:
		return Selector{}, fmt.Errorf("locator: unknown candidate kind %q", c.Kind)
	}
}

// JSElement returns a JavaScript expression evaluating to the first matching element, or null.
func (s Selector) JSElement() string {
	if s.Kind == QueryXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(s.Query))
	}
	return fmt.Sprintf("document.querySelector(%s)", jsString(s.Query))
}

// JSAll returns a JavaScript expression evaluating to an array of every matching element.
func (s Selector) JSAll() string {
	if s.Kind == QueryXPath {
		return fmt.Sprintf(`(function(){const r=document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);const out=[];for(let i=0;i<r.snapshotLength;i++){out.push(r.snapshotItem(i));}return out;})()`, jsString(s.Query))
	}
	return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", jsString(s.Query))
}

func (s Selector) String() string { return s.Kind.String() + ":" + s.Query }

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
