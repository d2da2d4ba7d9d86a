package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/msaudio/audioserver-go/internal/alerts"
	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/zone"
)

// executeZone routes audio/<zoneId>/<verb> commands. Unknown zones never
// error back to the miniserver: command verbs ack as no-ops, read verbs
// answer empty, both with a warn log and an audit note.
func (rt *Router) executeZone(ctx context.Context, req *Request) (result, error) {
	switch req.Verb {
	case "status":
		return rt.zoneStatus(req)
	case "getqueue":
		return rt.zoneQueue(req)
	case "favorites":
		return rt.zoneFavorites(ctx, req)
	case "favoriteplay":
		return rt.favoritePlay(ctx, req)
	case "volume":
		return rt.zoneVolume(ctx, req)
	case "shuffle":
		return rt.zoneShuffle(ctx, req)
	case "repeat":
		return rt.zoneRepeat(ctx, req)
	case "position":
		return rt.zonePosition(ctx, req)
	case "queueplay":
		return rt.zoneQueuePlay(ctx, req)
	case "groupjoin", "groupjoinmany", "groupleave", "groupleavemany":
		return rt.zoneGroup(ctx, req)
	case "announce":
		return rt.zoneAnnounce(ctx, req)
	default:
		// play, resume, pause, stop, queueplus, queueminus, serviceplay,
		// playlistplay and future verbs ride straight to the backend.
		return rt.zonePassthrough(ctx, req)
	}
}

// statusBody is one status_result element: the wire snapshot plus the
// zone's capability matrix.
type statusBody struct {
	*player.Status
	Capabilities zone.Capabilities `json:"capabilities"`
}

func (rt *Router) zoneStatus(req *Request) (result, error) {
	entry, ok := rt.zones.Zone(req.ZoneID)
	if !ok {
		return result{payload: []statusBody{}, note: "unknown zone"}, nil
	}
	return result{payload: []statusBody{{
		Status:       entry.Status(),
		Capabilities: entry.Capabilities(),
	}}}, nil
}

func (rt *Router) zoneQueue(req *Request) (result, error) {
	offset, err := argIntDefault("offset", req.Arg(0), 0)
	if err != nil {
		return result{}, err
	}
	limit, err := argIntDefault("limit", req.Arg(1), 0)
	if err != nil {
		return result{}, err
	}

	entry, ok := rt.zones.Zone(req.ZoneID)
	if !ok {
		return result{payload: emptyQueue(req.ZoneID, offset), note: "unknown zone"}, nil
	}
	q := entry.Queue()
	if q == nil {
		return result{payload: emptyQueue(req.ZoneID, offset)}, nil
	}
	return result{payload: q.Window(offset, limit)}, nil
}

func emptyQueue(zoneID, start int) *player.Queue {
	return &player.Queue{ZoneID: zoneID, Start: start, Items: []player.QueueItem{}}
}

// zonePassthrough hands the verb to the backend untouched.
func (rt *Router) zonePassthrough(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}
	err := rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb:    req.Verb,
		Args:    req.Args,
		Payload: req.Payload,
	})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return ack(), nil
}

// zoneVolume applies a signed delta to the zone's current level; the
// backend receives the clamped absolute value.
func (rt *Router) zoneVolume(ctx context.Context, req *Request) (result, error) {
	entry, ok := rt.zones.Zone(req.ZoneID)
	if !ok {
		rt.warnUnknownZone(req)
		return missAck("unknown zone"), nil
	}
	delta, err := argInt("volume", argOrValue(req, 0))
	if err != nil {
		return result{}, err
	}
	// A delta past the full range saturates either way; clamping it first
	// keeps the sum inside integer bounds.
	if delta > 100 {
		delta = 100
	} else if delta < -100 {
		delta = -100
	}
	level := player.ClampVolume(entry.Status().Volume + delta)
	if err := rt.sendVolume(ctx, req.ZoneID, level); err != nil {
		return result{}, err
	}
	return result{payload: map[string]any{"volume": level}}, nil
}

func (rt *Router) sendVolume(ctx context.Context, zoneID, level int) error {
	err := rt.dispatch(ctx, zoneID, backend.Command{
		Verb: "volume",
		Args: []string{strconv.Itoa(level)},
	})
	if err != nil {
		return err
	}
	rt.publishZoneStatus(zoneID)
	return nil
}

func (rt *Router) zoneShuffle(ctx context.Context, req *Request) (result, error) {
	entry, ok := rt.zones.Zone(req.ZoneID)
	if !ok {
		rt.warnUnknownZone(req)
		return missAck("unknown zone"), nil
	}
	value, toggle := player.ParseShuffle(argOrValue(req, 0))
	if toggle {
		value = !bool(entry.Status().PlShuffle)
	}
	arg := "0"
	if value {
		arg = "1"
	}
	err := rt.dispatch(ctx, req.ZoneID, backend.Command{Verb: "shuffle", Args: []string{arg}})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return result{payload: map[string]any{"plshuffle": player.NumericBool(value)}}, nil
}

func (rt *Router) zoneRepeat(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}
	mode := player.ParseRepeat(argOrValue(req, 0))
	err := rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb: "repeat",
		Args: []string{strconv.Itoa(int(mode))},
	})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return result{payload: map[string]any{"plrepeat": int(mode)}}, nil
}

func (rt *Router) zonePosition(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}
	seconds, err := argInt("position", argOrValue(req, 0))
	if err != nil {
		return result{}, err
	}
	if seconds < 0 {
		seconds = 0
	}
	err = rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb: "position",
		Args: []string{strconv.Itoa(seconds)},
	})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return result{payload: map[string]any{"time": seconds}}, nil
}

func (rt *Router) zoneQueuePlay(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}
	index, err := argInt("queue index", argOrValue(req, 0))
	if err != nil {
		return result{}, err
	}
	if index < 0 {
		return result{}, apperrors.NewValidationError("queue index must not be negative")
	}
	err = rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb: "queueplay",
		Args: []string{strconv.Itoa(index)},
	})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return ack(), nil
}

// zoneGroup runs the four grouping verbs. Member ids arrive as path
// segments, comma lists or a bare payload value; duplicates collapse.
func (rt *Router) zoneGroup(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}

	args := req.Args
	if extra := payloadString(req.Payload, "value"); extra != "" {
		args = append(append([]string{}, args...), extra)
	}
	ids, err := idSet("zone id", args)
	if err != nil {
		return result{}, err
	}
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = strconv.Itoa(id)
	}

	err = rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb:    req.Verb,
		Args:    tokens,
		Payload: req.Payload,
	})
	if err != nil {
		return result{}, err
	}

	switch req.Verb {
	case "groupjoin":
		// The commanded zone joined ids[0]'s group; match its level.
		if len(ids) > 0 {
			rt.alignGroupVolumes(ctx, ids[0], []int{req.ZoneID})
		}
	case "groupjoinmany":
		rt.alignGroupVolumes(ctx, req.ZoneID, ids)
	}

	rt.publishZoneStatus(req.ZoneID)
	return ack(), nil
}

// alignGroupVolumes pulls every member to the leader's current level so a
// freshly formed group does not play at mismatched volumes. Failures only
// log; the join itself already succeeded.
func (rt *Router) alignGroupVolumes(ctx context.Context, leaderID int, memberIDs []int) {
	leader, ok := rt.zones.Zone(leaderID)
	if !ok {
		return
	}
	target := leader.Status().Volume
	for _, id := range memberIDs {
		if id == leaderID {
			continue
		}
		member, ok := rt.zones.Zone(id)
		if !ok || member.Status().Volume == target {
			continue
		}
		if err := rt.sendVolume(ctx, id, target); err != nil {
			rt.logger.Warn().Err(err).Int("zone", id).Int("volume", target).Msg("aligning group volume")
		}
	}
}

// favoritePlay resolves a stored favorite and replays it through the
// content path, so a favorite behaves exactly like the serviceplay that
// created it.
func (rt *Router) favoritePlay(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}
	if rt.favorites == nil {
		return result{}, apperrors.NewValidationError("favorites are not configured")
	}
	id, err := favoriteID(argOrValue(req, 0))
	if err != nil {
		return result{}, err
	}
	item, err := rt.favorites.GetForPlayback(req.ZoneID, id)
	if err != nil {
		return result{}, err
	}
	if item == nil {
		rt.logger.Warn().Int("zone", req.ZoneID).Uint("favorite", id).Msg("favorite not found")
		return missAck("favorite not found"), nil
	}
	target := item.AudioPath
	if target == "" {
		target = item.SourceID
	}
	if target == "" {
		return result{}, apperrors.NewValidationError("favorite has no playable path")
	}
	err = rt.dispatch(ctx, req.ZoneID, backend.Command{
		Verb:    "serviceplay",
		Payload: map[string]any{"audiopath": target},
	})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return result{payload: map[string]any{"audiopath": target}}, nil
}

// zoneAnnounce resolves alert or TTS media and hands the playable URL to
// the backend. Raw urls, in the payload or split across path segments,
// pass through untouched.
func (rt *Router) zoneAnnounce(ctx context.Context, req *Request) (result, error) {
	if !rt.zoneKnown(req) {
		return missAck("unknown zone"), nil
	}

	mediaURL := payloadString(req.Payload, "url")
	if mediaURL == "" && len(req.Args) > 0 {
		if first := strings.ToLower(req.Arg(0)); strings.HasPrefix(first, "http:") || strings.HasPrefix(first, "https:") {
			mediaURL = strings.Join(req.Args, "/")
		}
	}

	if mediaURL == "" {
		typ := payloadString(req.Payload, "type")
		if typ == "" {
			typ = displayText(req.Arg(0))
		}
		text := displayText(payloadString(req.Payload, "text"))
		if typ == "" && text != "" {
			typ = "tts"
		}
		if typ == "" {
			return result{}, apperrors.NewValidationError("announce needs an alert type, text or url")
		}
		if rt.alerts == nil || rt.alertURL == nil {
			return result{}, apperrors.NewValidationError("alert media is not configured")
		}
		res, err := rt.alerts.Resolve(alerts.Request{
			Type:     typ,
			Text:     text,
			Language: payloadString(req.Payload, "language"),
		})
		if err != nil {
			return result{}, err
		}
		if res == nil {
			rt.logger.Warn().Int("zone", req.ZoneID).Str("type", typ).Msg("unknown alert type")
			return missAck("unknown alert type"), nil
		}
		mediaURL = rt.alertURL(res.RelPath)
	}

	payload := map[string]any{"url": mediaURL}
	if v, ok := req.Payload["volume"]; ok {
		payload["volume"] = v
	}
	err := rt.dispatch(ctx, req.ZoneID, backend.Command{Verb: "announce", Payload: payload})
	if err != nil {
		return result{}, err
	}
	rt.publishZoneStatus(req.ZoneID)
	return result{payload: map[string]any{"url": mediaURL}}, nil
}

// zoneFavorites routes the favorites mutations. They act on the per-zone
// file store; the service emits the change events.
func (rt *Router) zoneFavorites(ctx context.Context, req *Request) (result, error) {
	if rt.favorites == nil {
		return result{}, apperrors.NewValidationError("favorites are not configured")
	}
	op := strings.ToLower(req.Arg(0))
	args := req.Args
	if len(args) > 0 {
		args = args[1:]
	}

	switch op {
	case "add":
		title := displayText(firstNonEmpty(argAt(args, 0), payloadString(req.Payload, "title"), payloadString(req.Payload, "name")))
		sourceID := firstNonEmpty(argAt(args, 1), payloadString(req.Payload, "audiopath"), payloadString(req.Payload, "id"))
		resp, err := rt.favorites.Add(ctx, req.ZoneID, title, sourceID)
		if err != nil {
			return result{}, err
		}
		return result{payload: resp}, nil

	case "delete":
		id, err := favoriteID(argAt(args, 0))
		if err != nil {
			return result{}, err
		}
		if err := rt.favorites.Delete(req.ZoneID, id); err != nil {
			if apperrors.IsLookupMiss(err) {
				return missAck("favorite not found"), nil
			}
			return result{}, err
		}
		return ack(), nil

	case "reorder":
		ids, err := idSet("favorite id", args)
		if err != nil {
			return result{}, err
		}
		ordered := make([]uint, 0, len(ids))
		for _, id := range ids {
			if id < 0 {
				return result{}, apperrors.NewValidationError("favorite id must not be negative")
			}
			ordered = append(ordered, uint(id))
		}
		if err := rt.favorites.Reorder(req.ZoneID, ordered); err != nil {
			return result{}, err
		}
		return ack(), nil

	case "plus":
		id, err := favoriteID(argAt(args, 0))
		if err != nil {
			return result{}, err
		}
		value, toggle := player.ParseShuffle(argAt(args, 1))
		if toggle {
			value = true
		}
		if err := rt.favorites.SetPlus(req.ZoneID, id, value); err != nil {
			if apperrors.IsLookupMiss(err) {
				return missAck("favorite not found"), nil
			}
			return result{}, err
		}
		return ack(), nil

	case "copy":
		dests, err := idSet("zone id", args)
		if err != nil {
			return result{}, err
		}
		if len(dests) == 0 {
			return result{}, apperrors.NewValidationError("copy needs destination zones")
		}
		if err := rt.favorites.Copy(req.ZoneID, dests); err != nil {
			return result{}, err
		}
		return ack(), nil

	default:
		return result{}, apperrors.NewValidationError("unknown favorites operation " + strconv.Quote(op))
	}
}

func (rt *Router) dispatch(ctx context.Context, zoneID int, cmd backend.Command) error {
	return rt.zones.Dispatch(ctx, zoneID, cmd)
}

func (rt *Router) zoneKnown(req *Request) bool {
	if _, ok := rt.zones.Zone(req.ZoneID); ok {
		return true
	}
	rt.warnUnknownZone(req)
	return false
}

func (rt *Router) warnUnknownZone(req *Request) {
	rt.logger.Warn().Int("zone", req.ZoneID).Str("verb", req.Verb).Msg("command for unknown zone")
}

func argAt(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
