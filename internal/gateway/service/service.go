package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tedymoisa/micro-link-shortener/internal/models"
	"github.com/tedymoisa/micro-link-shortener/internal/repository"
	"github.com/tedymoisa/micro-link-shortener/pkg/shortcode"
)

const cacheTTL = 120 * time.Second

type urlRepo interface {
	UpsertURL(ctx context.Context, shortCode, longURL string) (*models.ShortURL, error)
	GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error)
}

type urlCache interface {
	HGet(ctx context.Context, key, field string) (string, bool)
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration)
}

type publisher interface {
	Publish(ctx context.Context, queue string, body []byte) bool
}

type Service struct {
	repo  urlRepo
	cache urlCache
	pub   publisher
	queue string
	l     *slog.Logger
}

func New(repo urlRepo, cache urlCache, pub publisher, queue string, l *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		pub:   pub,
		queue: queue,
		l:     l,
	}
}

// Create generates a short code for longURL, persists the mapping,
// populates the cache and publishes a creation event for the QR worker.
// The publish is best-effort: its failure never surfaces to the caller.
func (s *Service) Create(ctx context.Context, longURL string) (*models.ShortURL, error) {
	code := shortcode.Generate()

	url, err := s.repo.UpsertURL(ctx, code, longURL)
	if err != nil {
		s.l.Error("failed to store short url", slog.Any("error", err))
		return nil, err
	}

	s.cache.HSetWithTTL(ctx, repository.URLKey(url.ShortCode), map[string]string{
		repository.FieldLongURL: url.LongURL,
		repository.FieldQRCode:  "",
	}, cacheTTL)

	body, err := json.Marshal(models.URLCreatedMessage{
		ShortCode: url.ShortCode,
		LongURL:   url.LongURL,
	})
	if err != nil {
		s.l.Error("failed to marshal creation event", slog.Any("error", err))
		return url, nil
	}

	if !s.pub.Publish(ctx, s.queue, body) {
		s.l.Warn("creation event not published, qr code generation delayed",
			slog.String("short_code", url.ShortCode))
	}

	return url, nil
}

// ResolveURL returns the long URL for shortCode, cache-first.
func (s *Service) ResolveURL(ctx context.Context, shortCode string) (string, error) {
	return s.resolveField(ctx, shortCode, repository.FieldLongURL)
}

// ResolveQRCode returns the QR artifact for shortCode, cache-first. The
// empty string means the worker has not rendered it yet.
func (s *Service) ResolveQRCode(ctx context.Context, shortCode string) (string, error) {
	return s.resolveField(ctx, shortCode, repository.FieldQRCode)
}

func (s *Service) resolveField(ctx context.Context, shortCode, field string) (string, error) {
	key := repository.URLKey(shortCode)

	if v, ok := s.cache.HGet(ctx, key, field); ok {
		return v, nil
	}

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.l.Error("failed to look up short url",
				slog.String("short_code", shortCode), slog.Any("error", err))
		}
		return "", err
	}

	s.cache.HSetWithTTL(ctx, key, map[string]string{
		repository.FieldLongURL: url.LongURL,
		repository.FieldQRCode:  url.QRCode,
	}, cacheTTL)

	if field == repository.FieldQRCode {
		return url.QRCode, nil
	}
	return url.LongURL, nil
}
