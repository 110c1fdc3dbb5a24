package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TemplateFile represents the structure of the template seed JSON file.
type TemplateFile struct {
	Templates []TemplateSeed `json:"templates"`
}

// TemplateSeed is one metadata template to create at startup.
type TemplateSeed struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Privacy     string   `json:"privacy"`
}

// LoadTemplateFile loads template seeds from a JSON file.
func LoadTemplateFile(filePath string) (*TemplateFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var file TemplateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template JSON: %w", err)
	}

	for i, t := range file.Templates {
		if t.Name == "" {
			return nil, fmt.Errorf("template %d: name is required", i)
		}
		if t.Title == "" {
			return nil, fmt.Errorf("template %q: title is required", t.Name)
		}
		if t.Privacy == "" {
			file.Templates[i].Privacy = "public"
		}
	}

	return &file, nil
}

// Lookup returns the seed with the given name.
func (f *TemplateFile) Lookup(name string) (TemplateSeed, bool) {
	for _, t := range f.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return TemplateSeed{}, false
}
