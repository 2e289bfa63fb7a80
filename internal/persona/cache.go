package persona

import (
	"context"
	"log/slog"
)

// Cache holds the latest persona text per user.
type Cache interface {
	GetPersonaText(ctx context.Context, userID uint64) (text string, ok bool, err error)
	SetPersonaText(ctx context.Context, userID uint64, text string) error
	InvalidatePersona(ctx context.Context, userID uint64) error
}

type textSource interface {
	LatestPersonaText(ctx context.Context, userID uint64) (string, error)
}

// CachedReader serves LatestPersonaText from the cache and falls back to the
// store. Cache errors are logged and never fail the read.
type CachedReader struct {
	src   textSource
	cache Cache
	log   *slog.Logger
}

func NewCachedReader(src textSource, cache Cache, log *slog.Logger) *CachedReader {
	if log == nil {
		log = slog.Default()
	}
	return &CachedReader{src: src, cache: cache, log: log}
}

func (r *CachedReader) LatestPersonaText(ctx context.Context, userID uint64) (string, error) {
	text, ok, err := r.cache.GetPersonaText(ctx, userID)
	if err != nil {
		r.log.Warn("persona cache read failed", "user_id", userID, "err", err)
	} else if ok {
		return text, nil
	}

	text, err = r.src.LatestPersonaText(ctx, userID)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	if err := r.cache.SetPersonaText(ctx, userID, text); err != nil {
		r.log.Warn("persona cache write failed", "user_id", userID, "err", err)
	}
	return text, nil
}
