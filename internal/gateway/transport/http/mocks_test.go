package http

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

type mockservice struct {
	mock.Mock
}

func (m *mockservice) Create(ctx context.Context, longURL string) (*models.ShortURL, error) {
	args := m.Called(ctx, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShortURL), args.Error(1)
}

func (m *mockservice) ResolveURL(ctx context.Context, shortCode string) (string, error) {
	args := m.Called(ctx, shortCode)
	return args.String(0), args.Error(1)
}

func (m *mockservice) ResolveQRCode(ctx context.Context, shortCode string) (string, error) {
	args := m.Called(ctx, shortCode)
	return args.String(0), args.Error(1)
}
