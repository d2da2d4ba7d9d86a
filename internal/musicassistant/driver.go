package musicassistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/player"
)

// queueItemFetchLimit bounds the expansion RPC that follows a truncated
// queue event.
const queueItemFetchLimit = 250

// Driver bridges one zone to one Music Assistant player over the service's
// shared connection. Status flows in through pushed events; commands go out
// as RPC. Queue ids equal player ids on the server, except when the zone is
// synced and the leader's queue takes over.
type Driver struct {
	zoneID   int
	playerID string
	svc      *Service
	rt       backend.Runtime
	logger   zerolog.Logger

	closed atomic.Bool

	mu           sync.Mutex
	unsubscribe  func()
	offConnect   func()
	queueID      string
	leaderPlayer string
	shuffle      bool
	// expandedQueue holds the queue id whose full item list was already
	// fetched after a truncated event, so repeats of the same snapshot
	// do not fan out into more fetches.
	expandedQueue string
}

func newDriver(svc *Service, opts backend.Options) *Driver {
	return &Driver{
		zoneID:   opts.ZoneID,
		playerID: opts.Config.PlayerID,
		svc:      svc,
		rt:       opts.Runtime,
		logger:   log.WithComponent("musicassistant").With().Int("zone", opts.ZoneID).Logger(),
	}
}

// Initialize subscribes to server events and pulls the first full snapshot.
// The same sync reruns after every reconnect, so a zone heals on its own
// once the server comes back.
func (d *Driver) Initialize(ctx context.Context) error {
	unsub := d.svc.client.Subscribe(d.handleEvent)
	off := d.svc.client.OnConnect(func() {
		if err := d.syncFromServer(context.Background()); err != nil && !d.closed.Load() {
			d.logger.Warn().Err(err).Msg("resync after connect failed")
		}
	})

	d.mu.Lock()
	d.unsubscribe, d.offConnect = unsub, off
	d.mu.Unlock()
	if d.closed.Load() {
		unsub()
		off()
		return nil
	}

	if err := d.syncFromServer(ctx); err != nil {
		d.svc.client.EnsureBackground()
		return fmt.Errorf("initial sync for player %s: %w", d.playerID, err)
	}
	return nil
}

// Cleanup detaches from the shared client. The connection itself stays up
// for other zones; the service closes it at shutdown.
func (d *Driver) Cleanup() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.mu.Lock()
	unsub, off := d.unsubscribe, d.offConnect
	d.unsubscribe, d.offConnect = nil, nil
	d.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if off != nil {
		off()
	}
	return nil
}

// SendCommand translates a normalized zone verb to server RPC. Content
// verbs fall through to the adapter.
func (d *Driver) SendCommand(ctx context.Context, cmd backend.Command) error {
	switch cmd.Verb {
	case "play", "resume":
		return d.playerCmd(ctx, "players/cmd/play")
	case "pause":
		return d.playerCmd(ctx, "players/cmd/pause")
	case "stop":
		return d.playerCmd(ctx, "players/cmd/stop")
	case "queueplus":
		return d.playerCmd(ctx, "players/cmd/next")
	case "queueminus":
		return d.playerCmd(ctx, "players/cmd/previous")

	case "position":
		seconds, err := strconv.Atoi(cmd.Arg(0))
		if err != nil {
			return fmt.Errorf("position: bad seconds %q", cmd.Arg(0))
		}
		return d.call(ctx, "player_queues/seek", map[string]any{
			"queue_id": d.activeQueue(),
			"position": seconds,
		})

	case "volume":
		vol, err := strconv.Atoi(cmd.Arg(0))
		if err != nil {
			return fmt.Errorf("volume: bad level %q", cmd.Arg(0))
		}
		return d.call(ctx, "players/cmd/volume_set", map[string]any{
			"player_id":    d.playerID,
			"volume_level": player.ClampVolume(vol),
		})

	case "repeat":
		return d.call(ctx, "player_queues/repeat", map[string]any{
			"queue_id":    d.activeQueue(),
			"repeat_mode": maRepeatArg(player.ParseRepeat(cmd.Arg(0))),
		})

	case "shuffle":
		on := cmd.Arg(0) == "1" || strings.EqualFold(cmd.Arg(0), "true")
		return d.call(ctx, "player_queues/shuffle", map[string]any{
			"queue_id":        d.activeQueue(),
			"shuffle_enabled": on,
		})

	case "queueplay":
		index, err := strconv.Atoi(cmd.Arg(0))
		if err != nil || index < 0 {
			return fmt.Errorf("queueplay: bad index %q", cmd.Arg(0))
		}
		return d.call(ctx, "player_queues/play_index", map[string]any{
			"queue_id": d.activeQueue(),
			"index":    index,
		})

	case "groupjoin":
		return d.groupJoin(ctx, cmd.Arg(0))
	case "groupjoinmany":
		return d.groupJoinMany(ctx, cmd.Args)
	case "groupleave":
		return d.groupLeave(ctx)
	case "groupleavemany":
		return d.groupLeaveMany(ctx, cmd.Args)

	default:
		return backend.ErrUnhandled
	}
}

func (d *Driver) playerCmd(ctx context.Context, command string) error {
	return d.call(ctx, command, map[string]any{"player_id": d.playerID})
}

func (d *Driver) call(ctx context.Context, command string, args map[string]any) error {
	_, err := d.svc.client.Call(ctx, command, args)
	return err
}

// groupJoin makes this zone a member of the given leader zone's group.
func (d *Driver) groupJoin(ctx context.Context, leaderArg string) error {
	leaderZone, err := strconv.Atoi(leaderArg)
	if err != nil {
		return fmt.Errorf("groupjoin: bad zone id %q", leaderArg)
	}
	leaderPID, ok := d.rt.BackendPlayerID(leaderZone)
	if !ok {
		return fmt.Errorf("groupjoin: zone %d has no backend player", leaderZone)
	}
	return d.call(ctx, "players/cmd/group_many", map[string]any{
		"target_player":    leaderPID,
		"child_player_ids": []string{d.playerID},
	})
}

// groupJoinMany makes this zone the leader of the given member zones. The
// tracker is updated right away; the server's own event confirms it later.
func (d *Driver) groupJoinMany(ctx context.Context, memberArgs []string) error {
	zones := make([]int, 0, len(memberArgs))
	pids := make([]string, 0, len(memberArgs))
	for _, arg := range memberArgs {
		zoneID, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("groupjoinmany: bad zone id %q", arg)
		}
		if zoneID == d.zoneID {
			continue
		}
		pid, ok := d.rt.BackendPlayerID(zoneID)
		if !ok {
			return fmt.Errorf("groupjoinmany: zone %d has no backend player", zoneID)
		}
		zones = append(zones, zoneID)
		pids = append(pids, pid)
	}
	if len(pids) == 0 {
		return fmt.Errorf("groupjoinmany: no members given")
	}

	if err := d.call(ctx, "players/cmd/group_many", map[string]any{
		"target_player":    d.playerID,
		"child_player_ids": pids,
	}); err != nil {
		return err
	}

	d.rt.UpsertGroup(groups.Upsert{
		Leader:     d.zoneID,
		Members:    append([]int{d.zoneID}, zones...),
		Backend:    "musicassistant",
		ExternalID: d.playerID,
		Source:     groups.SourceManual,
	})
	return nil
}

func (d *Driver) groupLeave(ctx context.Context) error {
	if err := d.playerCmd(ctx, "players/cmd/ungroup"); err != nil {
		return err
	}
	d.rt.RemoveZoneFromGroup(d.zoneID)
	return nil
}

func (d *Driver) groupLeaveMany(ctx context.Context, memberArgs []string) error {
	for _, arg := range memberArgs {
		zoneID, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("groupleavemany: bad zone id %q", arg)
		}
		pid, ok := d.rt.BackendPlayerID(zoneID)
		if !ok {
			return fmt.Errorf("groupleavemany: zone %d has no backend player", zoneID)
		}
		if err := d.call(ctx, "players/cmd/ungroup", map[string]any{"player_id": pid}); err != nil {
			return err
		}
		d.rt.RemoveZoneFromGroup(zoneID)
	}
	return nil
}

// syncFromServer pulls the player and its queue and merges both.
func (d *Driver) syncFromServer(ctx context.Context) error {
	if d.closed.Load() {
		return nil
	}
	p, err := d.svc.PlayerByID(ctx, d.playerID)
	if err != nil {
		return err
	}
	d.applyPlayer(p)

	var queues []PlayerQueue
	if err := d.svc.client.CallInto(ctx, "player_queues/all", nil, &queues); err != nil {
		return err
	}
	active := d.activeQueue()
	for i := range queues {
		q := &queues[i]
		if q.QueueID != active && q.QueueID != d.playerID {
			continue
		}
		d.applyQueue(q)
		d.refreshQueueItems(ctx, q.QueueID)
		break
	}
	return nil
}

// activeQueue is the queue commands should target: the last seen queue id,
// which is the leader's while synced, or our own player id otherwise.
func (d *Driver) activeQueue() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queueID != "" {
		return d.queueID
	}
	return d.playerID
}

// relevant filters pushed events down to this zone: our player, the queue
// we follow, or the leader we are synced to. Player and queue events always
// name their subject; anything else without an object id addresses the
// whole server and passes.
func (d *Driver) relevant(evt Event) bool {
	if evt.ObjectID == "" {
		return !strings.HasPrefix(evt.Type, "player_") && !strings.HasPrefix(evt.Type, "queue_")
	}
	if evt.ObjectID == d.playerID {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queueID != "" && evt.ObjectID == d.queueID {
		return true
	}
	return d.leaderPlayer != "" && evt.ObjectID == d.leaderPlayer
}

func (d *Driver) handleEvent(evt Event) {
	if d.closed.Load() || !d.relevant(evt) {
		return
	}

	switch evt.Type {
	case eventPlayerAdded, eventPlayerUpdated:
		var p Player
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			d.logger.Warn().Err(err).Str("event", evt.Type).Msg("bad player payload")
			return
		}
		if p.PlayerID != d.playerID {
			return
		}
		d.applyPlayer(&p)

	case eventPlayerRemoved:
		if evt.ObjectID != d.playerID {
			return
		}
		d.rt.MergeStatus(d.zoneID, &player.Update{
			Power: player.Power(player.PowerOffline),
			Mode:  player.Mode(player.ModeStop),
		})

	case eventQueueAdded, eventQueueUpdated:
		var q PlayerQueue
		if err := json.Unmarshal(evt.Data, &q); err != nil {
			d.logger.Warn().Err(err).Str("event", evt.Type).Msg("bad queue payload")
			return
		}
		d.applyQueue(&q)

	case eventQueueItemsUpdate:
		var q PlayerQueue
		if err := json.Unmarshal(evt.Data, &q); err != nil {
			d.logger.Warn().Err(err).Str("event", evt.Type).Msg("bad queue payload")
			return
		}
		d.applyQueue(&q)
		if items, ok := q.itemList(); ok && len(items) > 3 && itemsHaveIDs(items) {
			d.clearQueueExpansion(q.QueueID)
			d.publishQueue(items)
		} else if d.markQueueExpansion(q.QueueID) {
			go d.expandQueueItems(q.QueueID)
		}

	case eventQueueTimeUpdate:
		var elapsed float64
		if err := json.Unmarshal(evt.Data, &elapsed); err != nil {
			d.logger.Debug().Err(err).Msg("bad time payload")
			return
		}
		d.applyElapsed(elapsed)
	}
}

// applyPlayer merges player-held state: power, mode, volume, mute, and the
// sync-group shape.
func (d *Driver) applyPlayer(p *Player) {
	if d.closed.Load() {
		return
	}
	u := &player.Update{
		Volume: player.Int(int(p.VolumeLevel + 0.5)),
		Muted:  player.Bool(p.VolumeMuted),
	}
	switch {
	case !p.Available:
		u.Power = player.Power(player.PowerOffline)
		u.Mode = player.Mode(player.ModeStop)
	case p.Powered:
		u.Power = player.Power(player.PowerOn)
		u.Mode = player.Mode(modeFor(p.State))
	default:
		u.Power = player.Power(player.PowerOff)
		u.Mode = player.Mode(player.ModeStop)
	}
	d.rt.MergeStatus(d.zoneID, u)
	d.applyGrouping(p)
}

// applyGrouping derives sync-group topology. Only the leader's child list
// rebuilds membership; a member event just tracks who leads so the leader's
// queue events stay relevant.
func (d *Driver) applyGrouping(p *Player) {
	d.mu.Lock()
	d.leaderPlayer = p.SyncedTo
	d.mu.Unlock()

	switch {
	case len(p.GroupChilds) > 0:
		members := []int{d.zoneID}
		for _, child := range p.GroupChilds {
			if zoneID, ok := d.rt.FindZoneByBackendPlayerID(child); ok && zoneID != d.zoneID {
				members = append(members, zoneID)
			}
		}
		d.rt.UpsertGroup(groups.Upsert{
			Leader:     d.zoneID,
			Members:    members,
			Backend:    "musicassistant",
			ExternalID: p.PlayerID,
			Source:     groups.SourceBackend,
		})
	case p.SyncedTo == "":
		d.rt.RemoveZoneFromGroup(d.zoneID)
	}
}

// applyQueue merges queue-held state: transport mode, elapsed, shuffle,
// repeat, index and the current item's metadata.
func (d *Driver) applyQueue(q *PlayerQueue) {
	if d.closed.Load() {
		return
	}
	d.mu.Lock()
	d.queueID = q.QueueID
	d.shuffle = q.ShuffleEnabled
	d.mu.Unlock()

	u := &player.Update{
		QID:        player.String(q.QueueID),
		PlShuffle:  player.Bool(q.ShuffleEnabled),
		PlRepeat:   player.Repeat(repeatModeFor(q.RepeatMode)),
		Time:       player.Int(int(q.ElapsedTime)),
		PositionMS: player.Int64(int64(q.ElapsedTime * 1000)),
	}
	if q.State != "" {
		u.Mode = player.Mode(modeFor(q.State))
	}
	if q.CurrentIndex != nil {
		u.QIndex = player.Int(*q.CurrentIndex)
	}
	if q.CurrentItem != nil {
		d.fillCurrentItem(u, q.CurrentItem)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

// fillCurrentItem maps the now-playing queue item onto status metadata. For
// radio the media name is the station and the queue item name carries the
// live stream title.
func (d *Driver) fillCurrentItem(u *player.Update, item *QueueItem) {
	media := item.MediaItem
	if media == nil {
		u.Title = player.String(item.Name)
		u.Duration = player.Int(durationSeconds(item.Duration))
		u.DurationMS = player.Int64(int64(item.Duration * 1000))
		return
	}

	u.AudioPath = player.String(canonicalPath(media))
	u.AudioType = player.Audio(audioTypeFor(media))
	u.CoverURL = player.String(d.svc.m.image(media))
	u.Artist = player.String(artistLine(media))
	u.Album = player.String(albumName(media))

	duration := media.Duration
	if duration == 0 {
		duration = item.Duration
	}
	u.Duration = player.Int(durationSeconds(duration))
	u.DurationMS = player.Int64(int64(duration * 1000))

	if media.MediaType == "radio" {
		u.Station = player.String(media.Name)
		u.Title = player.String(item.Name)
	} else {
		u.Station = player.String("")
		u.Title = player.String(media.Name)
	}
}

// applyElapsed merges a bare elapsed-seconds tick. The server emits a lone
// zero when a player halts without a state event, so zero also pauses.
func (d *Driver) applyElapsed(elapsed float64) {
	u := &player.Update{
		Time:       player.Int(int(elapsed)),
		PositionMS: player.Int64(int64(elapsed * 1000)),
	}
	if elapsed == 0 {
		u.Mode = player.Mode(player.ModePause)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

// markQueueExpansion reserves the one full-list fetch a truncated queue
// event may trigger. It reports false while a fetch for the same queue is
// in flight or has already succeeded.
func (d *Driver) markQueueExpansion(queueID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expandedQueue == queueID {
		return false
	}
	d.expandedQueue = queueID
	return true
}

func (d *Driver) clearQueueExpansion(queueID string) {
	d.mu.Lock()
	if d.expandedQueue == queueID {
		d.expandedQueue = ""
	}
	d.mu.Unlock()
}

// expandQueueItems runs the reserved fetch. A failed fetch releases the
// reservation so the next truncated event can retry.
func (d *Driver) expandQueueItems(queueID string) {
	if !d.refreshQueueItems(context.Background(), queueID) {
		d.clearQueueExpansion(queueID)
	}
}

// refreshQueueItems pulls the full item list and replaces the zone queue.
func (d *Driver) refreshQueueItems(ctx context.Context, queueID string) bool {
	if d.closed.Load() {
		return false
	}
	var items []QueueItem
	err := d.svc.client.CallInto(ctx, "player_queues/items", map[string]any{
		"queue_id": queueID,
		"limit":    queueItemFetchLimit,
		"offset":   0,
	}, &items)
	if err != nil {
		d.logger.Warn().Err(err).Str("queue_id", queueID).Msg("queue item fetch failed")
		return false
	}
	d.publishQueue(items)
	return true
}

func (d *Driver) publishQueue(items []QueueItem) {
	if d.closed.Load() {
		return
	}
	d.mu.Lock()
	shuffle := d.shuffle
	d.mu.Unlock()

	out := make([]player.QueueItem, 0, len(items))
	for i := range items {
		out = append(out, d.queueItem(i, &items[i]))
	}
	d.rt.ReplaceQueue(d.zoneID, &player.Queue{
		ZoneID:     d.zoneID,
		Items:      out,
		Shuffle:    shuffle,
		TotalItems: len(out),
	})
}

func (d *Driver) queueItem(index int, item *QueueItem) player.QueueItem {
	qi := player.QueueItem{
		QIndex:   index,
		UniqueID: item.QueueItemID,
		Title:    item.Name,
		Duration: durationSeconds(item.Duration),
	}
	media := item.MediaItem
	if media == nil {
		return qi
	}
	qi.Title = media.Name
	qi.Artist = artistLine(media)
	qi.Album = albumName(media)
	qi.AudioPath = canonicalPath(media)
	qi.AudioType = audioTypeFor(media)
	qi.CoverURL = d.svc.m.image(media)
	if media.MediaType == "radio" {
		qi.Station = media.Name
	}
	return qi
}

func itemsHaveIDs(items []QueueItem) bool {
	for i := range items {
		if items[i].QueueItemID == "" {
			return false
		}
	}
	return true
}

func modeFor(state string) player.PlayMode {
	switch state {
	case statePlaying:
		return player.ModePlay
	case statePaused:
		return player.ModePause
	default:
		return player.ModeStop
	}
}

func repeatModeFor(mode string) player.RepeatMode {
	switch mode {
	case repeatAll:
		return player.RepeatQueue
	case repeatOne:
		return player.RepeatTrack
	default:
		return player.RepeatNone
	}
}

func maRepeatArg(mode player.RepeatMode) string {
	switch mode {
	case player.RepeatQueue:
		return repeatAll
	case player.RepeatTrack:
		return repeatOne
	default:
		return repeatOff
	}
}
