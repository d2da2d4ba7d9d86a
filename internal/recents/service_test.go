package recents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/provider"
)

type fakeRecentSource struct {
	provider.MediaProvider
	resp     *provider.RecentResponse
	err      error
	clearErr error
	cleared  []int
}

func (f *fakeRecentSource) GetRecentlyPlayed(ctx context.Context, zoneID, limit int) (*provider.RecentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeRecentSource) ClearRecentlyPlayed(ctx context.Context, zoneID int) error {
	f.cleared = append(f.cleared, zoneID)
	return f.clearErr
}

func serviceWith(t *testing.T, repo *Repository, p provider.MediaProvider) *Service {
	t.Helper()
	return NewService(repo, func() (provider.MediaProvider, error) { return p, nil })
}

func TestService_PrefersProviderHistory(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Insert(1, track("library:local:track:1", "Local")))

	src := &fakeRecentSource{
		MediaProvider: provider.NewDummy(),
		resp: &provider.RecentResponse{TotalItems: 1, Items: []provider.RecentItem{{
			AudioPath: "library:local:track:42",
			Title:     "Upstream",
		}}},
	}
	svc := serviceWith(t, repo, src)

	resp, err := svc.Recent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "Upstream", resp.Items[0].Title)
}

func TestService_FallsBackOnProviderError(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Insert(1, track("library:local:track:1", "Local")))

	src := &fakeRecentSource{MediaProvider: provider.NewDummy(), err: errors.New("rpc down")}
	svc := serviceWith(t, repo, src)

	resp, err := svc.Recent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "Local", resp.Items[0].Title)
}

func TestService_FallsBackWithoutRecentSource(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Insert(1, track("library:local:track:1", "Local")))

	svc := serviceWith(t, repo, provider.NewDummy())

	resp, err := svc.Recent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalItems)
	require.Equal(t, "Local", resp.Items[0].Title)
}

func TestService_EmptyHistoryIsEmptyResponse(t *testing.T) {
	svc := NewService(testRepo(t), nil)

	resp, err := svc.Recent(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Equal(t, 0, resp.TotalItems)
	require.NotNil(t, resp.Items)
	require.Empty(t, resp.Items)
}

func TestService_ClearWipesBothStores(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Insert(1, track("library:local:track:1", "Local")))

	// A provider that cannot clear upstream must not block the local wipe.
	src := &fakeRecentSource{
		MediaProvider: provider.NewDummy(),
		clearErr:      errors.New("clearing recently played is not supported"),
	}
	svc := serviceWith(t, repo, src)

	require.NoError(t, svc.Clear(context.Background(), 1))
	require.Equal(t, []int{1}, src.cleared)

	items, err := repo.List(1, 0)
	require.NoError(t, err)
	require.Empty(t, items)
}
