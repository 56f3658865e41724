package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/solarpull/solarpull/pkg/storage"
)

type MockLoader struct {
	mock.Mock
}

var _ storage.Loader = (*MockLoader)(nil)

func (m *MockLoader) Store(ctx context.Context, table string, rows []storage.Row, defaults storage.Row, rename map[string]string, exclude []string) error {
	args := m.Called(ctx, table, rows, defaults, rename, exclude)
	return args.Error(0)
}

func (m *MockLoader) Lookup(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	args := m.Called(ctx, q)
	// return empty if not specified
	if len(args) > 0 {
		rows, _ := args.Get(0).([]storage.Row)
		return rows, args.Error(1)
	}
	return nil, nil
}

func (m *MockLoader) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
