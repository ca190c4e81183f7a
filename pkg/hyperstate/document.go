package hyperstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

// MediaType is the content type of entity documents
const MediaType string = "application/vnd.siren+json"

// Document is the wire representation of an entity. Field order matters to
// existing consumers and empty fields are left out.
type Document struct {
	Class      []string         `json:"class,omitempty"`
	Properties json.RawMessage  `json:"properties,omitempty"`
	Entities   []SubEntity      `json:"entities,omitempty"`
	Actions    []ActionDocument `json:"actions,omitempty"`
	Links      []LinkDocument   `json:"links,omitempty"`
	Title      string           `json:"title,omitempty"`

	// Version travels out of band, as an ETag over HTTP
	Version uint64 `json:"-"`
}

// SubEntity is a child entity embedded in a document
type SubEntity struct {
	Class      []string         `json:"class,omitempty"`
	Rel        []string         `json:"rel,omitempty"`
	Properties json.RawMessage  `json:"properties,omitempty"`
	Actions    []ActionDocument `json:"actions,omitempty"`
	Links      []LinkDocument   `json:"links,omitempty"`
	Title      string           `json:"title,omitempty"`
}

type ActionDocument struct {
	Name   string          `json:"name"`
	Method string          `json:"method"`
	Href   string          `json:"href"`
	Fields []FieldDocument `json:"fields,omitempty"`
}

type FieldDocument struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

type LinkDocument struct {
	Rel   []string `json:"rel"`
	Href  string   `json:"href"`
	Title string   `json:"title,omitempty"`
}

func (ad ActionDocument) params() []Param {
	params := make([]Param, 0, len(ad.Fields))
	for _, f := range ad.Fields {
		params = append(params, Param{Name: f.Name, Type: ParamType(f.Type), Required: f.Required})
	}
	return params
}

// SelfHref returns the href of the self link, if the document has one
func (d *Document) SelfHref() (string, bool) {
	return selfHref(d.Links)
}

func selfHref(links []LinkDocument) (string, bool) {
	for _, l := range links {
		for _, rel := range l.Rel {
			if rel == string(Self) {
				return l.Href, true
			}
		}
	}
	return "", false
}

// MapHrefs rewrites every href in the document, including the embedded ones
func (d *Document) MapHrefs(fn func(href string) string) {
	mapLinks(d.Links, fn)
	mapActions(d.Actions, fn)

	for idx := range d.Entities {
		mapLinks(d.Entities[idx].Links, fn)
		mapActions(d.Entities[idx].Actions, fn)
	}
}

func mapLinks(links []LinkDocument, fn func(string) string) {
	for idx := range links {
		links[idx].Href = fn(links[idx].Href)
	}
}

func mapActions(actions []ActionDocument, fn func(string) string) {
	for idx := range actions {
		actions[idx].Href = fn(actions[idx].Href)
	}
}

// NewDocument encodes e together with children, which may be nil
func NewDocument(e Entity, children []EntityRelationship) (*Document, error) {
	properties, err := encodeProperties(e.Props())
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Class:      e.Natures(),
		Properties: properties,
		Actions:    encodeActions(e.Actions()),
		Links:      encodeLinks(e.Links()),
		Title:      e.Title(),
		Version:    e.Version(),
	}

	for _, child := range children {
		sub, err := newSubEntity(child)
		if err != nil {
			return nil, err
		}
		doc.Entities = append(doc.Entities, sub)
	}

	return doc, nil
}

func newSubEntity(child EntityRelationship) (SubEntity, error) {
	e := child.Entity()

	properties, err := encodeProperties(e.Props())
	if err != nil {
		return SubEntity{}, err
	}

	return SubEntity{
		Class:      e.Natures(),
		Rel:        []string{string(child.Rel())},
		Properties: properties,
		Actions:    encodeActions(e.Actions()),
		Links:      encodeLinks(e.Links()),
		Title:      e.Title(),
	}, nil
}

func encodeProperties(properties any) (json.RawMessage, error) {
	if properties == nil {
		return nil, nil
	}

	b, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}

	return b, nil
}

func encodeActions(actions []*Action) []ActionDocument {
	if len(actions) == 0 {
		return nil
	}

	docs := make([]ActionDocument, 0, len(actions))
	for _, a := range actions {
		ad := ActionDocument{
			Name:   a.Name(),
			Method: string(a.Verb()),
			Href:   a.Href(),
		}

		for _, p := range a.Params() {
			ad.Fields = append(ad.Fields, FieldDocument{Name: p.Name, Type: string(p.Type), Required: p.Required})
		}

		docs = append(docs, ad)
	}

	return docs
}

func encodeLinks(links []NavigationalRelationship) []LinkDocument {
	if len(links) == 0 {
		return nil
	}

	docs := make([]LinkDocument, 0, len(links))
	for _, nr := range links {
		rels := make([]string, 0, len(nr.rels))
		for _, r := range nr.rels {
			rels = append(rels, string(r))
		}

		docs = append(docs, LinkDocument{
			Rel:   rels,
			Href:  nr.Link().Path(),
			Title: nr.Link().Title(),
		})
	}

	return docs
}

// Decode materialises doc as kind, bound to resolver r. The path of the
// entity is taken from the self link of the document, or fallbackPath if the
// document has none. Embedded entities are not decoded, see DecodeChildren.
func Decode(r Resolver, doc *Document, kind Kind, fallbackPath string) (Entity, error) {
	if kind == nil {
		kind = Vanilla
	}

	if !Compatible(kind, doc.Class) {
		return nil, typeMismatch(kind, doc.Class)
	}

	path, ok := doc.SelfHref()
	if !ok || path == "" {
		path = fallbackPath
	}

	e, err := kind.Decode(r, path, doc)
	if err != nil {
		return nil, err
	}

	addLinks(r, e, doc.Links)

	return e, nil
}

// DecodeChildren materialises the embedded entities of doc as Vanilla
// entities bound to r, in document order.
func DecodeChildren(r Resolver, doc *Document) ([]EntityRelationship, error) {
	children := make([]EntityRelationship, 0, len(doc.Entities))

	for _, sub := range doc.Entities {
		path, _ := selfHref(sub.Links)

		child, err := Vanilla.Decode(r, path, &Document{
			Class:      sub.Class,
			Properties: sub.Properties,
			Actions:    sub.Actions,
			Links:      sub.Links,
			Title:      sub.Title,
		})
		if err != nil {
			return nil, err
		}

		addLinks(r, child, sub.Links)

		rel := Item
		if len(sub.Rel) > 0 {
			rel = Relationship(sub.Rel[0])
		}

		children = append(children, NewEntityRelationship(child, rel))
	}

	return children, nil
}

func addLinks(r Resolver, e Entity, links []LinkDocument) {
	for _, l := range links {
		rels := make([]Relationship, 0, len(l.Rel))
		isSelf := false

		for _, rel := range l.Rel {
			if rel == string(Self) {
				isSelf = true
			}
			rels = append(rels, Relationship(rel))
		}

		// the self link has already been added when the entity was constructed
		if isSelf && len(rels) == 1 {
			continue
		}

		e.AddLink(NewNavigationalRelationship(NewLink(NewAddress(r, l.Href), l.Title), rels...))
	}
}

func typeMismatch(kind Kind, natures []string) error {
	return errors.NewTypeMismatchError(fmt.Sprintf("entity with natures [%s] is not a %s", strings.Join(natures, ","), kind.Name()))
}
