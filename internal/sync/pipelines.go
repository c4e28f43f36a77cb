package sync

import (
	"log/slog"
	"time"

	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/etl"
)

// Loaders holds the store-side upsert functions, one per pipeline.
type Loaders struct {
	Users       etl.LoadFunc
	Completions etl.LoadFunc
	Items       etl.LoadFunc
}

// BuildPipelines assembles the pipelines named in the configuration. Unknown
// names are skipped with a warning so a typo does not take the service down.
func BuildPipelines(client APIClient, loaders Loaders, cfg config.SyncConfig, logger *slog.Logger) []etl.Pipeline {
	available := map[string]etl.Pipeline{
		"users": {
			Name:       "users",
			Extract:    NewPagedExtractor(client, usersPath),
			Transform:  TransformUser,
			Validators: UserValidators(),
			Load:       loaders.Users,
		},
		"completions": {
			Name:       "completions",
			Extract:    NewCompletionsExtractor(client, cfg.DetailChunkSize, logger),
			Transform:  TransformCompletion,
			Validators: CompletionValidators(time.Now),
			Load:       loaders.Completions,
		},
		"items": {
			Name:       "items",
			Extract:    NewPagedExtractor(client, itemsPath),
			Transform:  TransformItem,
			Validators: ItemValidators(),
			Load:       loaders.Items,
		},
	}

	pipelines := make([]etl.Pipeline, 0, len(cfg.Pipelines))
	for _, name := range cfg.Pipelines {
		p, ok := available[name]
		if !ok {
			logger.Warn("unknown pipeline in configuration, skipping", "pipeline", name)
			continue
		}
		pipelines = append(pipelines, p)
	}

	return pipelines
}
