package sites

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solarpull/solarpull/pkg/portal"
	"github.com/solarpull/solarpull/pkg/types"
)

type mockPortal struct {
	mock.Mock
}

func (m *mockPortal) SiteMetadata(ctx context.Context, siteID string) (portal.SiteMetadata, error) {
	args := m.Called(ctx, siteID)
	return args.Get(0).(portal.SiteMetadata), args.Error(1)
}

func (m *mockPortal) ExportName(ctx context.Context, siteID string) (string, bool, error) {
	args := m.Called(ctx, siteID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("skips unknown sites", func(t *testing.T) {
		p := &mockPortal{}
		p.On("SiteMetadata", mock.Anything, "4760").Return(portal.SiteMetadata{
			SiteID:         "4760",
			Name:           "Quad 7",
			ActivationDate: "2016-05-01",
			Latitude:       "41.88",
			Longitude:      "bogus",
			Line1:          "1 Main St",
			City:           "Chicago",
			State:          "IL",
			Postal:         "60601",
			Timezone:       "-6:00",
		}, nil).Once()
		p.On("ExportName", mock.Anything, "4760").Return("Quad7", true, nil).Once()
		p.On("SiteMetadata", mock.Anything, "4761").Return(portal.SiteMetadata{}, portal.ErrNoMetadata).Once()
		p.On("SiteMetadata", mock.Anything, "4762").Return(portal.SiteMetadata{SiteID: "4762"}, nil).Once()
		p.On("ExportName", mock.Anything, "4762").Return("", false, nil).Once()

		found, err := Discover(ctx, p, []string{"4760", "4761", "4762"})
		require.NoError(t, err)
		assert.Equal(t, []types.Site{{
			ID:             "4760",
			Name:           "Quad 7",
			ActivationDate: "2016-05-01",
			Latitude:       41.88,
			Address:        "1 Main St",
			City:           "Chicago",
			State:          "IL",
			Postal:         "60601",
			Timezone:       "America/Chicago",
			ExportName:     "Quad7",
		}}, found)
		p.AssertExpectations(t)
	})

	t.Run("portal failure stops", func(t *testing.T) {
		p := &mockPortal{}
		p.On("SiteMetadata", mock.Anything, "1").Return(portal.SiteMetadata{}, errors.New("boom")).Once()

		_, err := Discover(ctx, p, []string{"1", "2"})
		assert.ErrorContains(t, err, "site 1")
		p.AssertExpectations(t)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Discover(cctx, &mockPortal{}, []string{"1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("4760, 5582,10-13,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"4760", "5582", "10", "11", "12", "13"}, ids)

	for _, bad := range []string{"abc", "5-2", "1-x", "0-100000"} {
		_, err := ParseIDs(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadIDs(t *testing.T) {
	ids, err := ReadIDs(strings.NewReader("4760\t\n\n5582\n 5077 \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"4760", "5582", "5077"}, ids)

	_, err = ReadIDs(strings.NewReader("4760\nsite\n"))
	assert.Error(t, err)
}
