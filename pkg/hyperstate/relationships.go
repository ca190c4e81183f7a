package hyperstate

import (
	"slices"
	"strings"
)

// Relationship is the semantic tag carried by links and child entity references
type Relationship string

const (
	Self       Relationship = "self"
	Item       Relationship = "item"
	Collection Relationship = "collection"
	Up         Relationship = "up"
	Root       Relationship = "root"
	Next       Relationship = "next"
	Prev       Relationship = "prev"
	First      Relationship = "first"
	Last       Relationship = "last"
)

// NavigationalRelationship is an outbound edge of the entity graph: a link
// tagged with one or more relationships.
type NavigationalRelationship struct {
	link Link
	rels []Relationship
}

func NewNavigationalRelationship(link Link, rels ...Relationship) NavigationalRelationship {
	sorted := slices.Clone(rels)
	slices.Sort(sorted)

	return NavigationalRelationship{
		link: link,
		rels: slices.Compact(sorted),
	}
}

func (nr NavigationalRelationship) Link() Link {
	return nr.link
}

func (nr NavigationalRelationship) Rels() []Relationship {
	return slices.Clone(nr.rels)
}

func (nr NavigationalRelationship) HasRelationship(rel Relationship) bool {
	_, found := slices.BinarySearch(nr.rels, rel)
	return found
}

// without returns nr with rel removed from its relationships
func (nr NavigationalRelationship) without(rel Relationship) NavigationalRelationship {
	return NavigationalRelationship{
		link: nr.link,
		rels: slices.DeleteFunc(slices.Clone(nr.rels), func(r Relationship) bool { return r == rel }),
	}
}

func (nr NavigationalRelationship) Equal(other NavigationalRelationship) bool {
	return nr.key() == other.key()
}

func (nr NavigationalRelationship) key() string {
	rels := make([]string, 0, len(nr.rels))
	for _, r := range nr.rels {
		rels = append(rels, string(r))
	}
	return nr.link.Path() + "\x00" + nr.link.Title() + "\x00" + strings.Join(rels, ",")
}

// EntityRelationship is an embedded, already materialised child entity
// together with the relationship it has to its parent.
type EntityRelationship struct {
	entity Entity
	rel    Relationship
}

func NewEntityRelationship(entity Entity, rel Relationship) EntityRelationship {
	return EntityRelationship{entity: entity, rel: rel}
}

func (er EntityRelationship) Entity() Entity {
	return er.entity
}

func (er EntityRelationship) Rel() Relationship {
	return er.rel
}

func (er EntityRelationship) HasRelationship(rel Relationship) bool {
	return er.rel == rel
}
