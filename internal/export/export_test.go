package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderMinutesHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Weekly Sync",
		ScheduledAt: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
		GeneratedAt: time.Date(2026, 3, 9, 16, 30, 0, 0, time.UTC),
		Points: []TemplatePoint{
			{Title: "Budget review", Author: "Anna", Description: "Q2 numbers", Completed: true, Notes: "Approved"},
			{Title: "Roster", Author: "Ben"},
		},
	}

	html, err := RenderMinutesHTML(data)
	if err != nil {
		t.Fatalf("RenderMinutesHTML() error = %v", err)
	}

	for _, want := range []string{"Weekly Sync", "Budget review", "Q2 numbers", "Anna", "Approved", "Roster", "Ben"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderMinutesHTMLEscapesMarkup(t *testing.T) {
	data := TemplateData{
		Title:       "<script>alert(1)</script>",
		ScheduledAt: time.Now(),
		GeneratedAt: time.Now(),
	}

	html, err := RenderMinutesHTML(data)
	if err != nil {
		t.Fatalf("RenderMinutesHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("template did not escape markup in title")
	}
}

func TestRenderMinutesHTMLNoPoints(t *testing.T) {
	html, err := RenderMinutesHTML(TemplateData{
		Title:       "Empty agenda",
		ScheduledAt: time.Now(),
		GeneratedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("RenderMinutesHTML() error = %v", err)
	}
	if !strings.Contains(html, "No agenda points") {
		t.Error("expected empty-agenda placeholder")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Weekly Sync", "Weekly-Sync"},
		{"Q2/Q3: Plan!", "Q2Q3-Plan"},
		{"", "minutes"},
		{"///", "minutes"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{"a b", "a%20b"},
		{"a+b", "a%2Bb"},
		{"<p>", "%3Cp%3E"},
	}
	for _, tt := range tests {
		if got := percentEncodeForDataURL(tt.in); got != tt.want {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
