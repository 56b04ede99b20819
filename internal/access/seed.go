package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nerrad567/garagegate/internal/infrastructure/config"
)

// SeedPlates upserts the plates listed in configuration. Existing entries
// keep their creation time; their metadata is replaced.
func SeedPlates(ctx context.Context, store *SQLitePlateStore, seeds []config.PlateSeed, logger *slog.Logger) (int, error) {
	for _, seed := range seeds {
		key, err := store.Upsert(ctx, seed.Plate, seed.Metadata)
		if err != nil {
			return 0, fmt.Errorf("seeding plate %q: %w", seed.Plate, err)
		}
		logger.Debug("authorised plate seeded", "plate", key)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if len(seeds) > 0 {
		logger.Info("authorised plates seeded", "seeded", len(seeds), "total", total)
	}
	return total, nil
}
