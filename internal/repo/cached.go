package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/miradorstack/mirador-rob/internal/cache"
	"github.com/miradorstack/mirador-rob/internal/models"
)

// CachedStore fronts a Store with cache-aside reads for templates and project
// settings. Writes go to the inner store first and then invalidate the key.
type CachedStore struct {
	Store
	cache cache.Provider
	ttl   time.Duration
}

// NewCachedStore wraps inner. A nil provider or non-positive ttl disables caching.
func NewCachedStore(inner Store, provider cache.Provider, ttl time.Duration) *CachedStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachedStore{Store: inner, cache: provider, ttl: ttl}
}

func cacheTemplateKey(projectID string, tool models.ToolType) string {
	return cache.Key("template", projectID, string(tool))
}

func cacheSettingsKey(projectID string) string {
	return cache.Key("settings", projectID)
}

// GetTemplate serves from cache when possible.
func (s *CachedStore) GetTemplate(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	key := cacheTemplateKey(projectID, tool)
	if s.ttl > 0 {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var cached models.Template
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	tmpl, err := s.Store.GetTemplate(ctx, projectID, tool)
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 {
		if payload, err := json.Marshal(tmpl); err == nil {
			_ = s.cache.Set(ctx, key, payload, s.ttl)
		}
	}
	return tmpl, nil
}

func (s *CachedStore) SaveTemplate(ctx context.Context, projectID string, tmpl *models.Template) error {
	if err := s.Store.SaveTemplate(ctx, projectID, tmpl); err != nil {
		return err
	}
	_ = s.cache.Del(ctx, cacheTemplateKey(projectID, tmpl.ToolType))
	return nil
}

func (s *CachedStore) DeleteTemplates(ctx context.Context, projectID string, tool models.ToolType) error {
	if err := s.Store.DeleteTemplates(ctx, projectID, tool); err != nil {
		return err
	}
	_ = s.cache.Del(ctx, cacheTemplateKey(projectID, tool))
	return nil
}

// GetSettings serves from cache when possible.
func (s *CachedStore) GetSettings(ctx context.Context, projectID string) (models.ProjectSettings, error) {
	key := cacheSettingsKey(projectID)
	if s.ttl > 0 {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var cached models.ProjectSettings
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	settings, err := s.Store.GetSettings(ctx, projectID)
	if err != nil {
		return models.ProjectSettings{}, err
	}
	if s.ttl > 0 {
		if payload, err := json.Marshal(settings); err == nil {
			_ = s.cache.Set(ctx, key, payload, s.ttl)
		}
	}
	return settings, nil
}

func (s *CachedStore) SaveSettings(ctx context.Context, settings models.ProjectSettings) error {
	if err := s.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	_ = s.cache.Del(ctx, cacheSettingsKey(settings.ProjectID))
	return nil
}
