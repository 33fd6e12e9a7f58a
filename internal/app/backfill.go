package app

import (
	"context"
	"errors"
)

// Backfill seeds one history row with the current quantity for every item
// that has none, so the trend classifier has a starting point.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	store, closeStore, err := a.requireStore(ctx, "backfill")
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := store.ItemsWithoutHistory(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.Logger.Info().Msg("every item already has history")
		return nil
	}

	if opts.DryRun {
		for _, item := range items {
			a.Logger.Info().Int64("item_id", item.ID).Str("name", item.Name).Int("quantity", item.Quantity).Msg("would seed history")
		}
		a.Logger.Warn().Int("items", len(items)).Msg("backfill dry-run: nothing written")
		return nil
	}

	processed := 0
	failed := 0
	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := store.InsertHistory(ctx, item.ID, item.Quantity); err != nil {
			failed++
			a.Logger.Error().Err(err).Int64("item_id", item.ID).Msg("seed history failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some items could not be backfilled; check the logs")
	}
	return nil
}
