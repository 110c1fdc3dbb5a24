package service

import (
	"context"
	"fmt"
	"log"

	"github.com/alphauslabs/buckshot/internal/config"
)

// SeedTemplates creates the templates named in file that do not exist yet.
// Existing templates are matched by name and left untouched.
func (s *UploadService) SeedTemplates(ctx context.Context, file *config.TemplateFile) (int, error) {
	existing, err := s.store.ListTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list templates: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[t.Name] = true
	}

	created := 0
	for _, seed := range file.Templates {
		if names[seed.Name] {
			continue
		}
		_, err := s.createTemplate(ctx, CreateTemplateRequest{
			Name:        seed.Name,
			Title:       seed.Title,
			Description: seed.Description,
			Tags:        seed.Tags,
			Privacy:     seed.Privacy,
		}, "system")
		if err != nil {
			return created, fmt.Errorf("failed to seed template %s: %w", seed.Name, err)
		}
		names[seed.Name] = true
		created++
	}

	log.Printf("Seeded %d of %d templates", created, len(file.Templates))
	return created, nil
}
