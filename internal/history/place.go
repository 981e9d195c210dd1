package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category names a collection of child objects inside a place.
type Category string

const (
	CategoryConnection Category = "connection"
	CategoryLocation   Category = "location"
	CategoryName       Category = "name"
)

// Categories in the order their clauses are rendered.
var Categories = []Category{CategoryConnection, CategoryLocation, CategoryName}

// Person is a creator or contributor credited on a place.
type Person struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Child is a name, location, or connection belonging to a place.
type Child struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	URI     string  `json:"uri"`
	History []Event `json:"history"`
}

// Place is the subset of a Pleiades place record used for reporting.
type Place struct {
	ID           string   `json:"id"`
	URI          string   `json:"uri"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PlaceTypes   []string `json:"placeTypes"`
	History      []Event  `json:"history"`
	Names        []Child  `json:"names"`
	Locations    []Child  `json:"locations"`
	Connections  []Child  `json:"connections"`
	Creators     []Person `json:"creators"`
	Contributors []Person `json:"contributors"`
}

// DecodePlace parses a place JSON document.
func DecodePlace(data []byte) (*Place, error) {
	var p Place
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode place: %w", err)
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, errors.New("decode place: title is missing")
	}
	if p.ID == "" && p.URI == "" {
		return nil, errors.New("decode place: id and uri are missing")
	}
	return &p, nil
}

// Children returns the child objects of one category.
func (p *Place) Children(c Category) []Child {
	switch c {
	case CategoryName:
		return p.Names
	case CategoryLocation:
		return p.Locations
	case CategoryConnection:
		return p.Connections
	}
	return nil
}

// People maps usernames of credited creators and contributors to display
// names.
func (p *Place) People() map[string]string {
	out := make(map[string]string)
	for _, group := range [][]Person{p.Creators, p.Contributors} {
		for _, person := range group {
			if person.Username != "" && person.Name != "" {
				out[person.Username] = person.Name
			}
		}
	}
	return out
}

// FirstPublished returns the earliest "Publish externally" event in the
// place's own history.
func (p *Place) FirstPublished() (time.Time, bool) {
	var first time.Time
	for _, e := range p.History {
		if e.Action != ActionPublish {
			continue
		}
		if first.IsZero() || e.Modified.Before(first) {
			first = e.Modified
		}
	}
	return first, !first.IsZero()
}

// LastModified returns the latest event across the place and its children.
func (p *Place) LastModified() (time.Time, bool) {
	var last time.Time
	visit := func(events []Event) {
		for _, e := range events {
			if e.Modified.After(last) {
				last = e.Modified
			}
		}
	}
	visit(p.History)
	for _, c := range Categories {
		for _, child := range p.Children(c) {
			visit(child.History)
		}
	}
	return last, !last.IsZero()
}
