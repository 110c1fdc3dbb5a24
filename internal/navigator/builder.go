package navigator

import (
	"strings"
	"unicode/utf8"

	"github.com/alphauslabs/buckshot/internal/database"
)

// Platform metadata limits.
const (
	maxTitleRunes       = 100
	maxDescriptionBytes = 5000
	maxTagsTotal        = 500
)

// resolveMetadata picks each field by precedence:
//
//	title, description : task override → template → job
//	tags               : task override → job tags merged with template tags
//	privacy            : job
func resolveMetadata(in Input) *Plan {
	p := &Plan{
		Privacy: in.Job.Privacy,
		Source:  make(map[string]string, 3),
	}

	var tplTitle, tplDescription string
	var tplTags []string
	if in.Template != nil {
		tplTitle = in.Template.Title
		tplDescription = database.Deref(in.Template.Description)
		tplTags = in.Template.Tags
	}

	switch {
	case in.Task.TitleOverride != nil:
		p.Title, p.Source["title"] = *in.Task.TitleOverride, "override"
	case tplTitle != "":
		p.Title, p.Source["title"] = tplTitle, "template"
	default:
		p.Title, p.Source["title"] = in.Job.Title, "job"
	}

	switch {
	case in.Task.DescriptionOverride != nil:
		p.Description, p.Source["description"] = *in.Task.DescriptionOverride, "override"
	case tplDescription != "":
		p.Description, p.Source["description"] = tplDescription, "template"
	default:
		p.Description, p.Source["description"] = database.Deref(in.Job.Description), "job"
	}

	if len(in.Task.TagsOverride) > 0 {
		p.Tags, p.Source["tags"] = append([]string(nil), in.Task.TagsOverride...), "override"
	} else {
		p.Tags = append(append([]string(nil), in.Job.Tags...), tplTags...)
		p.Source["tags"] = "job"
		if len(tplTags) > 0 {
			p.Source["tags"] = "job+template"
		}
	}
	return p
}

// sanitiseTitle strips angle brackets, which the platform rejects, and
// truncates to the title limit.
func sanitiseTitle(s string) string {
	s = strings.TrimSpace(stripAngles(s))
	if utf8.RuneCountInString(s) > maxTitleRunes {
		s = string([]rune(s)[:maxTitleRunes])
	}
	return strings.TrimSpace(s)
}

func sanitiseDescription(s string) string {
	s = stripAngles(s)
	for len(s) > maxDescriptionBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// sanitiseTags trims, removes duplicates (case-insensitive) and drops tags
// once the combined length reaches the platform limit.
func sanitiseTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	total := 0
	for _, tag := range tags {
		tag = strings.TrimSpace(stripAngles(tag))
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		n := utf8.RuneCountInString(tag)
		if strings.ContainsRune(tag, ' ') {
			n += 2 // quoted by the platform
		}
		if total+n > maxTagsTotal {
			break
		}
		seen[key] = true
		total += n
		out = append(out, tag)
	}
	return out
}

func stripAngles(s string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}
