package backup

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/logbook/internal/datastore"
)

// LoadCollections fetches the three live collections concurrently.
func LoadCollections(ctx context.Context, entities datastore.EntityStore) (datastore.Collections, error) {
	results := make([][]datastore.Record, len(datastore.AllCollections))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range datastore.AllCollections {
		g.Go(func() error {
			records, err := entities.FetchAll(gctx, c)
			if err != nil {
				berr := newError(ErrRead, "fetch", "failed to fetch collection", err)
				berr.Collection = c
				return berr
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return datastore.Collections{}, err
	}

	var payload datastore.Collections
	for i, c := range datastore.AllCollections {
		if err := payload.Set(c, results[i]); err != nil {
			return datastore.Collections{}, newError(ErrRead, "fetch", "store returned records of the wrong type", err)
		}
	}
	payload.Normalize()
	return payload, nil
}
