package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// Writer stores instances (PostgresSource, StaticSource)
type Writer interface {
	Upsert(ctx context.Context, inst contracts.StrategyInstance) error
}

// Seed copies every file instance, enabled or not, into dst.
// It returns the sector filters whose cached lists are now stale, ALL included.
func Seed(ctx context.Context, src *FileSource, dst Writer) ([]string, error) {
	instances, err := src.LoadAll()
	if err != nil {
		return nil, err
	}

	stale := map[string]bool{contracts.SectorAll: true}
	for _, inst := range instances {
		if err := dst.Upsert(ctx, inst); err != nil {
			return nil, fmt.Errorf("seed instance %s: %w", inst.ID, err)
		}
		for _, sector := range inst.Sectors {
			stale[strings.ToUpper(sector)] = true
		}
	}

	sectors := make([]string, 0, len(stale))
	for sector := range stale {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	return sectors, nil
}
