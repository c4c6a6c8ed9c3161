package control

import (
	"context"

	"streamcast/internal/models"
)

// defaultPlatforms is the built-in catalog used when the repository has no
// platform rows, matching the destinations owners expect out of the box.
var defaultPlatforms = []models.Platform{
	{
		ID:                "youtube",
		Name:              "YouTube Live",
		RTMPBaseURL:       "rtmp://a.rtmp.youtube.com/live2/",
		RequiresStreamKey: true,
	},
	{
		ID:                "facebook",
		Name:              "Facebook Live",
		RTMPBaseURL:       "rtmps://live-api-s.facebook.com:443/rtmp/",
		RequiresStreamKey: true,
		SupportsHTTPS:     true,
	},
	{
		ID:                "twitch",
		Name:              "Twitch",
		RTMPBaseURL:       "rtmp://live.twitch.tv/app/",
		RequiresStreamKey: true,
	},
	{
		ID:   "custom",
		Name: "Custom RTMP",
	},
}

// ListPlatforms returns the platform catalog. Repository rows take priority
// so an operator can curate the list; the built-ins apply otherwise.
func (o *Orchestrator) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	platforms, err := o.repo.ListPlatforms(ctx)
	if err != nil {
		return nil, internalErr("list platforms", err)
	}
	if len(platforms) == 0 {
		platforms = append(platforms, defaultPlatforms...)
	}
	return platforms, nil
}

func (o *Orchestrator) resolvePlatform(ctx context.Context, platformID string) (models.Platform, error) {
	if platformID == "" {
		return models.Platform{}, validationErr("platform id is required")
	}
	platforms, err := o.ListPlatforms(ctx)
	if err != nil {
		return models.Platform{}, err
	}
	for _, p := range platforms {
		if p.ID == platformID {
			return p, nil
		}
	}
	return models.Platform{}, notFoundErr("platform %s not found", platformID)
}
