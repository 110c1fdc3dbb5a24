package navigator

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alphauslabs/buckshot/internal/database"
)

func strPtr(s string) *string { return &s }

func baseInput() Input {
	return Input{
		Task: &database.Task{TaskId: "task-1"},
		Job: &database.Job{
			JobId:         "job-1",
			Title:         "Launch day",
			Description:   strPtr("Watch the launch"),
			Tags:          []string{"launch", "news"},
			Privacy:       database.PrivacyUnlisted,
			VideoFilename: "launch.mp4",
			CreatedAt:     time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		},
		Account: &database.Account{Email: "a@example.com", ChannelTitle: strPtr("Acme TV")},
	}
}

// ─── Navigate() ─────────────────────────────────────────────────────────────

func TestNavigate_JobMetadata(t *testing.T) {
	plan, err := Navigate(baseInput())
	if err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if plan.Title != "Launch day" {
		t.Errorf("Title: got %q", plan.Title)
	}
	if plan.Description != "Watch the launch" {
		t.Errorf("Description: got %q", plan.Description)
	}
	if !reflect.DeepEqual(plan.Tags, []string{"launch", "news"}) {
		t.Errorf("Tags: got %v", plan.Tags)
	}
	if plan.Privacy != database.PrivacyUnlisted {
		t.Errorf("Privacy: got %s", plan.Privacy)
	}
	if plan.Source["title"] != "job" {
		t.Errorf("title source: got %s", plan.Source["title"])
	}
	if plan.Summary == "" {
		t.Error("Summary must not be empty")
	}
}

func TestNavigate_TemplateRendersJobVariables(t *testing.T) {
	in := baseInput()
	in.Template = &database.Template{
		Title:       "{{title}} | {{channel}}",
		Description: strPtr("{{description}} ({{date}}) {{missing}}"),
		Tags:        []string{"{{channel}}", "News"},
	}

	plan, err := Navigate(in)
	if err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if plan.Title != "Launch day | Acme TV" {
		t.Errorf("Title: got %q", plan.Title)
	}
	if plan.Description != "Watch the launch (2026-05-04) {{missing}}" {
		t.Errorf("Description: got %q", plan.Description)
	}
	// "News" duplicates "news" case-insensitively.
	if !reflect.DeepEqual(plan.Tags, []string{"launch", "news", "Acme TV"}) {
		t.Errorf("Tags: got %v", plan.Tags)
	}
	if plan.Source["title"] != "template" || plan.Source["tags"] != "job+template" {
		t.Errorf("Source: got %v", plan.Source)
	}
}

func TestNavigate_OverrideWins(t *testing.T) {
	in := baseInput()
	in.Template = &database.Template{Title: "template title"}
	in.Task.TitleOverride = strPtr("Custom for {{channel}}")
	in.Task.DescriptionOverride = strPtr("custom description")
	in.Task.TagsOverride = []string{"only"}

	plan, err := Navigate(in)
	if err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if plan.Title != "Custom for Acme TV" {
		t.Errorf("Title: got %q", plan.Title)
	}
	if plan.Description != "custom description" {
		t.Errorf("Description: got %q", plan.Description)
	}
	if !reflect.DeepEqual(plan.Tags, []string{"only"}) {
		t.Errorf("Tags: got %v", plan.Tags)
	}
	for _, field := range []string{"title", "description", "tags"} {
		if plan.Source[field] != "override" {
			t.Errorf("%s source: got %s, want override", field, plan.Source[field])
		}
	}
}

func TestNavigate_RequiresRecords(t *testing.T) {
	in := baseInput()
	in.Account = nil
	if _, err := Navigate(in); err == nil {
		t.Error("expected error for missing account")
	}
}

func TestNavigate_EmptyRenderedTitle(t *testing.T) {
	in := baseInput()
	in.Task.TitleOverride = strPtr("<>")
	if _, err := Navigate(in); err == nil {
		t.Error("expected error for empty title")
	}
}

// ─── sanitise ───────────────────────────────────────────────────────────────

func TestSanitiseTitle(t *testing.T) {
	long := strings.Repeat("é", 150)
	if got := sanitiseTitle(long); len([]rune(got)) != maxTitleRunes {
		t.Errorf("title length: got %d runes", len([]rune(got)))
	}
	if got := sanitiseTitle("  a <b> c  "); got != "a b c" {
		t.Errorf("sanitiseTitle: got %q", got)
	}
}

func TestSanitiseDescription(t *testing.T) {
	got := sanitiseDescription(strings.Repeat("ü", 4000))
	if len(got) > maxDescriptionBytes {
		t.Errorf("description length: got %d bytes", len(got))
	}
	if !strings.HasPrefix(got, "ü") || strings.ContainsRune(got, '�') {
		t.Error("description truncated mid-rune")
	}
}

func TestSanitiseTags(t *testing.T) {
	var tags []string
	for i := 0; i < 100; i++ {
		tags = append(tags, strings.Repeat(string(rune('a'+i%26)), 9)+string(rune('0'+i/26)))
	}
	got := sanitiseTags(append([]string{"", "  spaced tag ", "Spaced Tag"}, tags...))

	if got[0] != "spaced tag" {
		t.Errorf("first tag: got %q", got[0])
	}
	total := 0
	for _, tag := range got {
		total += len(tag)
		if strings.Contains(tag, " ") {
			total += 2
		}
	}
	if total > maxTagsTotal {
		t.Errorf("total tag length %d exceeds %d", total, maxTagsTotal)
	}
	if len(got) >= 101 {
		t.Errorf("expected tags to be dropped, got %d", len(got))
	}
}
