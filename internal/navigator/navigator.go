// Package navigator resolves the metadata one task publishes with.
//
// It sits between the stored task and the platform provider:
//
//	Task + Job + Account (+ Template)
//	    ↓
//	navigator.Navigate()
//	    ├─ resolveMetadata()  — override, then template, then job
//	    ├─ template.Render()  — {{variable}} substitution
//	    └─ sanitise()         — platform length and character limits
//	         ↓
//	platform.Provider.Upload
//
// The navigator is stateless (no I/O) and safe to call from any goroutine.
package navigator

import (
	"fmt"

	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/template"
)

// Input holds the records a plan is built from. Template may be nil.
type Input struct {
	Task     *database.Task
	Job      *database.Job
	Account  *database.Account
	Template *database.Template
}

// Plan is the resolved metadata for one upload.
type Plan struct {
	Title       string
	Description string
	Tags        []string
	Privacy     database.Privacy

	// Source records where each field came from ("override", "template" or
	// "job"), for the upload log.
	Source map[string]string

	// Summary is a one-line description of the plan for logging.
	Summary string
}

// Navigate builds the upload plan for in.
func Navigate(in Input) (*Plan, error) {
	if in.Task == nil || in.Job == nil || in.Account == nil {
		return nil, fmt.Errorf("navigator: task, job and account are required")
	}

	plan := resolveMetadata(in)
	vars := Variables(in)
	plan.Title = sanitiseTitle(template.Render(plan.Title, vars))
	plan.Description = sanitiseDescription(template.Render(plan.Description, vars))
	for i, tag := range plan.Tags {
		plan.Tags[i] = template.Render(tag, vars)
	}
	plan.Tags = sanitiseTags(plan.Tags)

	if plan.Title == "" {
		return nil, fmt.Errorf("navigator: title is empty after rendering")
	}

	plan.Summary = fmt.Sprintf(
		"task=%s account=%s title=%q privacy=%s tags=%d",
		in.Task.TaskId,
		in.Account.Email,
		plan.Title,
		plan.Privacy,
		len(plan.Tags),
	)
	return plan, nil
}

// VariableNames lists the placeholders Variables provides.
var VariableNames = []string{"title", "filename", "date", "job_id", "email", "channel", "description"}

// Variables returns the placeholder values available to templates.
func Variables(in Input) template.Vars {
	vars := template.Vars{
		"title":    in.Job.Title,
		"filename": in.Job.VideoFilename,
		"date":     in.Job.CreatedAt.Format("2006-01-02"),
		"job_id":   in.Job.JobId,
		"email":    in.Account.Email,
		"channel":  database.Deref(in.Account.ChannelTitle),
	}
	if in.Job.Description != nil {
		vars["description"] = *in.Job.Description
	}
	return vars
}
