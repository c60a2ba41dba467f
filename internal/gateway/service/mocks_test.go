package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

type mockurlRepo struct {
	mock.Mock
}

func (m *mockurlRepo) UpsertURL(ctx context.Context, shortCode, longURL string) (*models.ShortURL, error) {
	args := m.Called(ctx, shortCode, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShortURL), args.Error(1)
}

func (m *mockurlRepo) GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShortURL), args.Error(1)
}

type mockurlCache struct {
	mock.Mock
}

func (m *mockurlCache) HGet(ctx context.Context, key, field string) (string, bool) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Bool(1)
}

func (m *mockurlCache) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) {
	m.Called(ctx, key, fields, ttl)
}

type mockpublisher struct {
	mock.Mock
}

func (m *mockpublisher) Publish(ctx context.Context, queue string, body []byte) bool {
	args := m.Called(ctx, queue, body)
	return args.Bool(0)
}
