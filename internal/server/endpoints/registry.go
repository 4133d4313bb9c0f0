package endpoints

import (
	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager *defra.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Manuscript sources
		&UploadSourceEndpoint{},

		// Parsing jobs
		&StartParsingEndpoint{},
		&ParsingStatusEndpoint{},
		&ListJobsEndpoint{},
		&CancelJobEndpoint{},
		&ProcessQueueEndpoint{},
		&PreviewSourceEndpoint{},

		// Chapters
		&CreateChaptersEndpoint{},
		&ListChaptersEndpoint{},
		&ApproveChapterEndpoint{},

		// Narration
		&StartTTSEndpoint{},
	}
}

// ParsingCommands returns the endpoints grouped under "api parsing".
func ParsingCommands() []api.Endpoint {
	return []api.Endpoint{
		&StartParsingEndpoint{},
		&ParsingStatusEndpoint{},
		&ListJobsEndpoint{},
		&CancelJobEndpoint{},
		&ProcessQueueEndpoint{},
		&PreviewSourceEndpoint{},
	}
}

// ChapterCommands returns the endpoints grouped under "api chapters".
func ChapterCommands() []api.Endpoint {
	return []api.Endpoint{
		&CreateChaptersEndpoint{},
		&ListChaptersEndpoint{},
		&ApproveChapterEndpoint{},
	}
}
