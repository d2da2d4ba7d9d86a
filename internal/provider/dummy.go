package provider

import "context"

// Dummy is the fallback provider: every lookup is empty, nothing errors.
// Zones work fine without a media provider; browsing is just hollow.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Key() string { return "dummy" }

func (d *Dummy) GetRadios(ctx context.Context) ([]RadioEntry, error) {
	return []RadioEntry{}, nil
}

func (d *Dummy) GetServiceFolder(ctx context.Context, service, folderID, user string, offset, limit int) (*FolderResponse, error) {
	resp := EmptyFolder(folderID, offset)
	resp.Service = service
	return resp, nil
}

func (d *Dummy) ResolveStation(ctx context.Context, service, stationID string) (*FolderItem, error) {
	return nil, nil
}

func (d *Dummy) GetPlaylists(ctx context.Context, offset, limit int) (*PlaylistResponse, error) {
	return EmptyPlaylists("playlists", offset), nil
}

func (d *Dummy) GetPlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*PlaylistResponse, error) {
	return EmptyPlaylists(playlistID, offset), nil
}

func (d *Dummy) ResolvePlaylist(ctx context.Context, service, playlistID string) (*PlaylistItem, error) {
	return nil, nil
}

func (d *Dummy) GetMediaFolder(ctx context.Context, folderID string, offset, limit int) (*FolderResponse, error) {
	return EmptyFolder(folderID, offset), nil
}

func (d *Dummy) ResolveMediaItem(ctx context.Context, folderID, itemID string) (*FolderItem, error) {
	return nil, nil
}
