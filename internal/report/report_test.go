package report

import (
	"errors"
	"testing"
	"time"
)

func TestNewTitle(t *testing.T) {
	r, err := New("test", "k", "Annales ab excessu divi Augusti")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Title() != "Annales ab excessu divi Augusti" {
		t.Errorf("title = %q", r.Title())
	}

	if err := r.SetTitle("Academicorum reliquiae cum Lucullo"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if r.Title() != "Academicorum reliquiae cum Lucullo" {
		t.Errorf("title = %q", r.Title())
	}
}

func TestTitleNormalized(t *testing.T) {
	// "e" + combining acute composes to U+00E9.
	r, err := New("test", "k", "  Athe\u0301nai \n\t  Polis ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Title() != "Ath\u00e9nai Polis" {
		t.Errorf("title = %q", r.Title())
	}
}

func TestBlankTitle(t *testing.T) {
	if _, err := New("test", "k", " \n "); !errors.Is(err, ErrBlankTitle) {
		t.Errorf("err = %v, want ErrBlankTitle", err)
	}
}

func TestSummaryNormalized(t *testing.T) {
	r, _ := New("test", "k", "t")
	r.SetSummary("a   b\n\nc")
	if r.Summary() != "a b c" {
		t.Errorf("summary = %q", r.Summary())
	}
}

func TestSetMarkdown(t *testing.T) {
	r, _ := New("test", "k", "t")
	if err := r.SetMarkdown("\n\n  First   line \nsecond\n\n\n\nthird\n\n"); err != nil {
		t.Fatalf("set markdown: %v", err)
	}
	want := "First line\nsecond\n\nthird"
	if r.Markdown() != want {
		t.Errorf("markdown = %q, want %q", r.Markdown(), want)
	}
}

func TestSetMarkdownBlank(t *testing.T) {
	r, _ := New("test", "k", "t")
	if err := r.SetMarkdown(" \n\t\n "); !errors.Is(err, ErrBlankMarkdown) {
		t.Errorf("err = %v, want ErrBlankMarkdown", err)
	}
}

func TestTextDerivedFromMarkdown(t *testing.T) {
	r, _ := New("test", "k", "t")
	if r.Text() != "" {
		t.Errorf("text without markdown = %q, want empty", r.Text())
	}

	_ = r.SetMarkdown("A *new* place: [Roma](https://pleiades.stoa.org/places/423025)\n\nSecond paragraph.")
	want := "A new place: Roma (https://pleiades.stoa.org/places/423025)\n\nSecond paragraph."
	if r.Text() != want {
		t.Errorf("text = %q, want %q", r.Text(), want)
	}
	if r.String() != want {
		t.Errorf("String() = %q", r.String())
	}
}

func TestTextOverride(t *testing.T) {
	r, _ := New("test", "k", "t")
	_ = r.SetMarkdown("**bold**")
	r.SetText("verbatim  text")
	if r.Text() != "verbatim  text" {
		t.Errorf("text = %q", r.Text())
	}
}

func TestSetWhen(t *testing.T) {
	r, _ := New("test", "k", "t")

	at := time.Date(2024, 12, 17, 10, 0, 0, 0, time.FixedZone("X", 3600))
	if err := r.SetWhen(at); err != nil {
		t.Fatalf("set when time: %v", err)
	}
	if !r.When().Equal(at) || r.When().Location() != time.UTC {
		t.Errorf("when = %v", r.When())
	}

	if err := r.SetWhen("2024-12-17T10:00:00+01:00"); err != nil {
		t.Fatalf("set when string: %v", err)
	}
	if !r.When().Equal(at) {
		t.Errorf("when = %v, want %v", r.When(), at)
	}

	if err := r.SetWhen(12345); !errors.Is(err, ErrWhenType) {
		t.Errorf("err = %v, want ErrWhenType", err)
	}
	if err := r.SetWhen("2024-12-17 10:00"); err == nil {
		t.Error("expected error for string without zone")
	}
}

func TestAddTags(t *testing.T) {
	r, _ := New("test", "k", "t")
	if len(r.Tags()) != 0 {
		t.Fatalf("tags should default to empty")
	}
	r.AddTags("Pleiades", "#ancient history", "pleiades", "", "Zotero")
	want := []string{"Pleiades", "ancienthistory", "Zotero"}
	got := r.Tags()
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
