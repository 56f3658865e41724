package server

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/solarpull/solarpull/pkg/types"
)

type mockAssembler struct {
	mock.Mock
}

func (m *mockAssembler) Assemble(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) ([]types.DeviceBlock, error) {
	args := m.Called(ctx, site, start, end, g)
	if len(args) > 0 {
		blocks, _ := args.Get(0).([]types.DeviceBlock)
		return blocks, args.Error(1)
	}
	return nil, nil
}

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) CollectSite(ctx context.Context, site types.Site, start, end time.Time, intervalMinutes int) error {
	args := m.Called(ctx, site, start, end, intervalMinutes)
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
