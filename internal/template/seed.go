package template

import (
	"context"
	"fmt"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// Writer stores templates (PostgresStore, MemoryStore)
type Writer interface {
	Upsert(ctx context.Context, tpl *contracts.Template) error
}

// Seed copies every template file into dst and returns how many were written
func Seed(ctx context.Context, src *FileStore, dst Writer) (int, error) {
	templates, err := src.ListFiles()
	if err != nil {
		return 0, err
	}

	for i := range templates {
		if err := dst.Upsert(ctx, &templates[i]); err != nil {
			return i, fmt.Errorf("seed template %s: %w", templates[i].ID, err)
		}
	}
	return len(templates), nil
}
