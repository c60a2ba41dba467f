package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
	"github.com/tedymoisa/micro-link-shortener/internal/repository"
)

// ErrMalformedMessage marks a payload that can never be processed
// successfully; the consumer discards such messages permanently.
var ErrMalformedMessage = errors.New("malformed queue message")

const (
	cacheTTL = 120 * time.Second
	qrSize   = 256
)

type urlRepo interface {
	UpdateQRCode(ctx context.Context, shortCode, qrCode string) (*models.ShortURL, error)
}

type urlCache interface {
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration)
}

type Service struct {
	repo  urlRepo
	cache urlCache
	l     *slog.Logger
}

func New(repo urlRepo, cache urlCache, l *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, l: l}
}

// GenerateQRCode processes one creation event: parse, render, persist,
// refresh the cache. Duplicate deliveries of the same short code are
// idempotent: the artifact is simply re-rendered and overwritten.
func (s *Service) GenerateQRCode(ctx context.Context, body []byte) error {
	var msg models.URLCreatedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.l.Error("failed to unmarshal creation event", slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	s.l.Info("processing creation event", slog.String("short_code", msg.ShortCode))

	qr, err := renderQRCode(msg.LongURL)
	if err != nil {
		s.l.Error("failed to render qr code",
			slog.String("short_code", msg.ShortCode), slog.Any("error", err))
		return err
	}

	url, err := s.repo.UpdateQRCode(ctx, msg.ShortCode, qr)
	if err != nil {
		s.l.Warn("failed to save qr code",
			slog.String("short_code", msg.ShortCode), slog.Any("error", err))
		return err
	}

	s.cache.HSetWithTTL(ctx, repository.URLKey(url.ShortCode), map[string]string{
		repository.FieldLongURL: url.LongURL,
		repository.FieldQRCode:  url.QRCode,
	}, cacheTTL)

	s.l.Info("qr code saved", slog.String("short_code", msg.ShortCode))
	return nil
}

// renderQRCode encodes longURL as a borderless PNG with the highest error
// correction level, returned as an embeddable data URI.
func renderQRCode(longURL string) (string, error) {
	code, err := qrcode.New(longURL, qrcode.Highest)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	code.DisableBorder = true

	png, err := code.PNG(qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr code png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
