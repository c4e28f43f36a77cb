// Package sync assembles the concrete LMS pipelines: users, completions and
// catalog items.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/lms"
	"github.com/learningops/lmsync/internal/models"
)

// Remote resource paths.
const (
	usersPath       = "/learning/public/admin/user-service/v1/Users"
	completionsPath = "/learning/public/admin/learningHistory/v1/Completions"
	itemsPath       = "/learning/public/admin/catalog/v1/Items"
)

// recordTypeField tags raw records by origin so a mixed batch can be
// transformed without guessing from field shapes.
const (
	recordTypeField      = "__record"
	recordTypeItemDetail = "item"
)

// APIClient is the slice of the LMS client the extractors need.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// pagedExtract pulls every page of a resource with $skip/$top offsets. A page
// of exactly pageSize records means more data may exist; a shorter page is the
// terminal page.
func pagedExtract(ctx context.Context, client APIClient, path string, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
	var out []models.Raw
	skip := 0

	for {
		query := lms.PageQuery(skip, pageSize)
		if since != nil {
			query.Set("$filter", lms.ModifiedSinceFilter(*since))
		}

		raw, err := client.Get(ctx, path, query)
		if err != nil {
			return nil, err
		}

		page, err := lms.DecodeResults(raw)
		if err != nil {
			return nil, fmt.Errorf("decode page at skip %d: %w", skip, err)
		}

		out = append(out, page...)

		if maxRecords > 0 && len(out) >= maxRecords {
			return out[:maxRecords], nil
		}
		if len(page) < pageSize {
			return out, nil
		}
		skip += pageSize
	}
}

// NewPagedExtractor adapts pagedExtract to the pipeline contract.
func NewPagedExtractor(client APIClient, path string) etl.ExtractFunc {
	return func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
		return pagedExtract(ctx, client, path, since, pageSize, maxRecords)
	}
}

// NewCompletionsExtractor pulls completions and resolves the referenced item
// ids to full catalog records, chunked to stay under request-size limits. The
// detail records ride in the same batch, tagged with recordTypeField.
func NewCompletionsExtractor(client APIClient, chunkSize int, logger *slog.Logger) etl.ExtractFunc {
	return func(ctx context.Context, since *time.Time, pageSize, maxRecords int) ([]models.Raw, error) {
		completions, err := pagedExtract(ctx, client, completionsPath, since, pageSize, maxRecords)
		if err != nil {
			return nil, err
		}

		itemIDs := distinctItemIDs(completions)
		if len(itemIDs) == 0 {
			return completions, nil
		}

		details, err := fetchItemDetails(ctx, client, itemIDs, chunkSize)
		if err != nil {
			return nil, err
		}

		logger.Debug("resolved item details",
			"completions", len(completions),
			"distinct_items", len(itemIDs),
			"details", len(details),
		)

		return append(completions, details...), nil
	}
}

// fetchItemDetails resolves item ids in chunks joined into one OR filter per
// request.
func fetchItemDetails(ctx context.Context, client APIClient, ids []string, chunkSize int) ([]models.Raw, error) {
	var out []models.Raw

	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query := url.Values{}
		query.Set("$filter", lms.IDFilter("itemID", ids[start:end]))

		raw, err := client.Get(ctx, itemsPath, query)
		if err != nil {
			return nil, err
		}

		chunk, err := lms.DecodeResults(raw)
		if err != nil {
			return nil, fmt.Errorf("decode item details: %w", err)
		}

		for _, rec := range chunk {
			rec[recordTypeField] = recordTypeItemDetail
			out = append(out, rec)
		}
	}

	return out, nil
}

func distinctItemIDs(completions []models.Raw) []string {
	seen := make(map[string]struct{}, len(completions))
	var ids []string
	for _, rec := range completions {
		id := rec.String("itemID")
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
