package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/audit"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// executeCfg routes audio/cfg/<verb> commands against the media surface.
// Provider trouble never errors a read: the response is the empty shape of
// the right kind, with the cause in the log and the audit note.
func (rt *Router) executeCfg(ctx context.Context, req *Request) (result, error) {
	switch req.Verb {
	case "getradios":
		return rt.cfgRadios(ctx)
	case "getservicefolder":
		return rt.cfgServiceFolder(ctx, req)
	case "getplaylists":
		return rt.cfgPlaylists(ctx, req)
	case "getplaylistitems":
		return rt.cfgPlaylistItems(ctx, req)
	case "getmediafolder":
		return rt.cfgMediaFolder(ctx, req)
	case "resolvemediaitem":
		return rt.cfgResolveMediaItem(ctx, req)
	case "getfavorites":
		return rt.cfgFavorites(ctx, req)
	case "getrecent":
		return rt.cfgRecent(ctx, req)
	case "clearrecent":
		return rt.cfgClearRecent(ctx, req)
	case "globalsearch":
		return rt.cfgGlobalSearch(ctx, req)
	case "getsyncedplayers":
		return rt.cfgSyncedPlayers()
	case "getaudit":
		return rt.cfgAudit(req)
	default:
		return result{}, apperrors.NewValidationError("unknown cfg command " + strconv.Quote(req.Verb))
	}
}

func (rt *Router) warnProvider(verb string, err error) {
	rt.logger.Warn().Err(err).Str("verb", verb).Msg("media provider error, answering empty")
}

func (rt *Router) cfgRadios(ctx context.Context) (result, error) {
	p := rt.mediaProvider()
	if p == nil {
		return result{payload: []provider.RadioEntry{}, note: "no media provider"}, nil
	}
	radios, err := p.GetRadios(ctx)
	if err != nil {
		rt.warnProvider("getradios", err)
		return result{payload: []provider.RadioEntry{}, note: err.Error()}, nil
	}
	if radios == nil {
		radios = []provider.RadioEntry{}
	}
	return result{payload: radios}, nil
}

func (rt *Router) cfgServiceFolder(ctx context.Context, req *Request) (result, error) {
	service := req.Arg(0)
	var rest []string
	if len(req.Args) > 1 {
		rest = req.Args[1:]
	}
	folderID, user := argAt(rest, 0), argAt(rest, 1)
	offsetArg, limitArg := argAt(rest, 2), argAt(rest, 3)
	if len(rest) > 4 {
		// An unencoded folder id splits across path segments; the tail is
		// still user, offset, limit.
		folderID = strings.Join(rest[:len(rest)-3], "/")
		user = rest[len(rest)-3]
		offsetArg = rest[len(rest)-2]
		limitArg = rest[len(rest)-1]
	}
	offset, limit, err := pageArgs(offsetArg, limitArg)
	if err != nil {
		return result{}, err
	}

	p := rt.mediaProvider()
	if p == nil {
		return result{payload: provider.EmptyFolder(folderID, offset), note: "no media provider"}, nil
	}
	resp, err := p.GetServiceFolder(ctx, service, folderID, user, offset, limit)
	if err != nil {
		rt.warnProvider("getservicefolder", err)
		return result{payload: provider.EmptyFolder(folderID, offset), note: err.Error()}, nil
	}
	if resp == nil {
		resp = provider.EmptyFolder(folderID, offset)
	}
	return result{payload: resp}, nil
}

func (rt *Router) cfgPlaylists(ctx context.Context, req *Request) (result, error) {
	offset, limit, err := pageArgs(req.Arg(0), req.Arg(1))
	if err != nil {
		return result{}, err
	}

	p := rt.mediaProvider()
	if p == nil {
		return result{payload: provider.EmptyPlaylists("", offset), note: "no media provider"}, nil
	}
	resp, err := p.GetPlaylists(ctx, offset, limit)
	if err != nil {
		rt.warnProvider("getplaylists", err)
		return result{payload: provider.EmptyPlaylists("", offset), note: err.Error()}, nil
	}
	if resp == nil {
		resp = provider.EmptyPlaylists("", offset)
	}
	return result{payload: resp}, nil
}

func (rt *Router) cfgPlaylistItems(ctx context.Context, req *Request) (result, error) {
	playlistID, offsetArg, limitArg := splitIDPage(req.Args)
	offset, limit, err := pageArgs(offsetArg, limitArg)
	if err != nil {
		return result{}, err
	}

	p := rt.mediaProvider()
	if p == nil {
		return result{payload: provider.EmptyPlaylists(playlistID, offset), note: "no media provider"}, nil
	}
	resp, err := p.GetPlaylistItems(ctx, playlistID, offset, limit)
	if err != nil {
		rt.warnProvider("getplaylistitems", err)
		return result{payload: provider.EmptyPlaylists(playlistID, offset), note: err.Error()}, nil
	}
	if resp == nil {
		resp = provider.EmptyPlaylists(playlistID, offset)
	}
	return result{payload: resp}, nil
}

func (rt *Router) cfgMediaFolder(ctx context.Context, req *Request) (result, error) {
	folderID, offsetArg, limitArg := splitIDPage(req.Args)
	offset, limit, err := pageArgs(offsetArg, limitArg)
	if err != nil {
		return result{}, err
	}

	p := rt.mediaProvider()
	if p == nil {
		return result{payload: provider.EmptyFolder(folderID, offset), note: "no media provider"}, nil
	}
	resp, err := p.GetMediaFolder(ctx, folderID, offset, limit)
	if err != nil {
		rt.warnProvider("getmediafolder", err)
		return result{payload: provider.EmptyFolder(folderID, offset), note: err.Error()}, nil
	}
	if resp == nil {
		resp = provider.EmptyFolder(folderID, offset)
	}
	return result{payload: resp}, nil
}

func (rt *Router) cfgResolveMediaItem(ctx context.Context, req *Request) (result, error) {
	folderID := req.Arg(0)
	itemID := ""
	if len(req.Args) > 1 {
		itemID = strings.Join(req.Args[1:], "/")
	}

	p := rt.mediaProvider()
	if p == nil {
		return result{payload: map[string]any{}, note: "no media provider"}, nil
	}
	item, err := p.ResolveMediaItem(ctx, folderID, itemID)
	if err != nil {
		rt.warnProvider("resolvemediaitem", err)
		return result{payload: map[string]any{}, note: err.Error()}, nil
	}
	if item == nil {
		return result{payload: map[string]any{}}, nil
	}
	return result{payload: item}, nil
}

// cfgFavorites asks a provider-side favorite list first and falls back to
// the per-zone favorite files.
func (rt *Router) cfgFavorites(ctx context.Context, req *Request) (result, error) {
	zoneID, err := argInt("zone id", req.Arg(0))
	if err != nil {
		return result{}, err
	}
	offset, limit, err := pageArgs(req.Arg(1), req.Arg(2))
	if err != nil {
		return result{}, err
	}

	if p := rt.mediaProvider(); p != nil {
		if fs, ok := p.(provider.FavoriteSource); ok {
			resp, err := fs.GetFavorites(ctx, zoneID, offset, limit)
			if err == nil && resp != nil {
				return result{payload: resp}, nil
			}
			if err != nil {
				rt.warnProvider("getfavorites", err)
			}
		}
	}

	if rt.favorites == nil {
		return result{payload: emptyFavorites(offset), note: "favorites are not configured"}, nil
	}
	resp, err := rt.favorites.Get(ctx, zoneID, offset, limit)
	if err != nil {
		return result{}, err
	}
	return result{payload: resp}, nil
}

func emptyFavorites(start int) *provider.FavoriteResponse {
	return &provider.FavoriteResponse{Start: start, Items: []provider.FavoriteItem{}}
}

func (rt *Router) cfgRecent(ctx context.Context, req *Request) (result, error) {
	zoneID, err := argInt("zone id", req.Arg(0))
	if err != nil {
		return result{}, err
	}
	limit, err := argIntDefault("limit", req.Arg(1), 0)
	if err != nil {
		return result{}, err
	}

	if rt.recents == nil {
		return result{payload: &provider.RecentResponse{Items: []provider.RecentItem{}}, note: "recents are not configured"}, nil
	}
	resp, err := rt.recents.Recent(ctx, zoneID, limit)
	if err != nil {
		return result{}, err
	}
	return result{payload: resp}, nil
}

func (rt *Router) cfgClearRecent(ctx context.Context, req *Request) (result, error) {
	zoneID, err := argInt("zone id", req.Arg(0))
	if err != nil {
		return result{}, err
	}
	if rt.recents == nil {
		return result{}, apperrors.NewValidationError("recents are not configured")
	}
	if err := rt.recents.Clear(ctx, zoneID); err != nil {
		return result{}, err
	}
	return ack(), nil
}

// cfgGlobalSearch announces the search on the event stream before asking
// the provider, then pushes the merged results under the same search id.
// The HTTP or websocket caller gets the results in its own envelope too.
func (rt *Router) cfgGlobalSearch(ctx context.Context, req *Request) (result, error) {
	source := req.Arg(0)
	query := ""
	if len(req.Args) > 1 {
		query = displayText(strings.Join(req.Args[1:], "/"))
	}
	query = strings.TrimSpace(query)

	searchID := uuid.NewString()
	rt.publishSearch(map[string]any{"id": searchID, "command": req.Raw})

	note := ""
	results := provider.SearchResults{}
	if query == "" {
		note = "empty query"
	} else if p := rt.mediaProvider(); p == nil {
		note = "no media provider"
	} else if s, ok := p.(provider.Searcher); !ok {
		note = "provider does not search"
	} else if found, err := s.GlobalSearch(ctx, source, query); err != nil {
		rt.warnProvider("globalsearch", err)
		note = err.Error()
	} else if found != nil {
		results = found
	}

	rt.publishSearch(map[string]any{"id": searchID, "command": req.Raw, "results": results})
	return result{payload: results, note: note}, nil
}

func (rt *Router) publishSearch(frame map[string]any) {
	if rt.events == nil {
		return
	}
	rt.events.Publish(broadcast.EventSearchResult, frame)
}

// syncedGroup is one getsyncedplayers record, shaped like the group-changed
// push event.
type syncedGroup struct {
	Group   string `json:"group"`
	Leader  int    `json:"leader"`
	Players []int  `json:"players"`
	Backend string `json:"backend"`
	Source  string `json:"source"`
}

func (rt *Router) cfgSyncedPlayers() (result, error) {
	records := rt.zones.Groups()
	out := make([]syncedGroup, 0, len(records))
	for _, rec := range records {
		group := rec.ExternalID
		if group == "" {
			group = strconv.Itoa(rec.Leader)
		}
		out = append(out, syncedGroup{
			Group:   group,
			Leader:  rec.Leader,
			Players: rec.Members,
			Backend: rec.Backend,
			Source:  string(rec.Source),
		})
	}
	return result{payload: out}, nil
}

func (rt *Router) cfgAudit(req *Request) (result, error) {
	limit, err := argIntDefault("limit", req.Arg(0), 0)
	if err != nil {
		return result{}, err
	}
	if rt.auditLog == nil {
		return result{payload: []audit.Event{}, note: "audit log is not configured"}, nil
	}
	events, err := rt.auditLog.List(limit)
	if err != nil {
		return result{}, err
	}
	return result{payload: events}, nil
}

// pageArgs parses the trailing offset and limit arguments. Absent values
// mean "from the start" and "everything"; negative offsets snap to zero.
func pageArgs(offsetArg, limitArg string) (int, int, error) {
	offset, err := argIntDefault("offset", offsetArg, 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := argIntDefault("limit", limitArg, 0)
	if err != nil {
		return 0, 0, err
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit, nil
}

// splitIDPage peels offset and limit off the argument tail, joining
// whatever precedes them back into the id. Ids containing slashes arrive
// split; the page suffix keeps its place either way.
func splitIDPage(args []string) (id, offsetArg, limitArg string) {
	switch {
	case len(args) >= 3:
		return strings.Join(args[:len(args)-2], "/"), args[len(args)-2], args[len(args)-1]
	case len(args) == 2:
		return args[0], args[1], ""
	case len(args) == 1:
		return args[0], "", ""
	default:
		return "", "", ""
	}
}
