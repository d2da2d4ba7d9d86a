package musicassistant

import "github.com/goccy/go-json"

// rpcRequest is one client-to-server command frame.
type rpcRequest struct {
	MessageID string         `json:"message_id"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args,omitempty"`
}

// rpcFrame is the union of everything the server sends: the greeting info
// frame (ServerVersion set, no MessageID), command results (possibly chunked
// with Partial), command errors and pushed events.
type rpcFrame struct {
	MessageID     string          `json:"message_id,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Partial       bool            `json:"partial,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Details       string          `json:"details,omitempty"`
	Event         string          `json:"event,omitempty"`
	ObjectID      string          `json:"object_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	ServerVersion string          `json:"server_version,omitempty"`
}

// Event is a pushed server event handed to subscribers.
type Event struct {
	Type     string
	ObjectID string
	Data     json.RawMessage
}

// Player mirrors the fields of a Music Assistant player object this server
// reads. Everything else in the payload is ignored.
type Player struct {
	PlayerID     string   `json:"player_id"`
	Provider     string   `json:"provider"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name,omitempty"`
	Available    bool     `json:"available"`
	Powered      bool     `json:"powered"`
	State        string   `json:"state"`
	VolumeLevel  float64  `json:"volume_level"`
	VolumeMuted  bool     `json:"volume_muted"`
	GroupChilds  []string `json:"group_childs,omitempty"`
	SyncedTo     string   `json:"synced_to,omitempty"`
	ActiveSource string   `json:"active_source,omitempty"`
}

// Artist is the nested artist reference on tracks.
type Artist struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
}

// MediaItemImage is one artwork entry in item metadata.
type MediaItemImage struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Provider string `json:"provider"`
	Remote   bool   `json:"remotely_accessible"`
}

// MediaItemMetadata carries the slices of item metadata this server uses.
type MediaItemMetadata struct {
	Images      []MediaItemImage `json:"images,omitempty"`
	Description string           `json:"description,omitempty"`
}

// ProviderMapping links a library item to the provider it came from.
type ProviderMapping struct {
	ItemID         string `json:"item_id"`
	ProviderDomain string `json:"provider_domain"`
	ProviderInst   string `json:"provider_instance"`
	Available      bool   `json:"available"`
}

// MediaItem is the common shape of tracks, albums, artists, playlists and
// radios as returned by the music/* commands.
type MediaItem struct {
	ItemID           string            `json:"item_id"`
	Provider         string            `json:"provider"`
	MediaType        string            `json:"media_type"`
	URI              string            `json:"uri"`
	Name             string            `json:"name"`
	Version          string            `json:"version,omitempty"`
	Duration         float64           `json:"duration,omitempty"`
	Artists          []Artist          `json:"artists,omitempty"`
	Album            *MediaItem        `json:"album,omitempty"`
	Owner            string            `json:"owner,omitempty"`
	Metadata         MediaItemMetadata `json:"metadata"`
	ProviderMappings []ProviderMapping `json:"provider_mappings,omitempty"`
	Favorite         bool              `json:"favorite,omitempty"`
}

// QueueItem is one entry of a player queue.
type QueueItem struct {
	QueueItemID string     `json:"queue_item_id"`
	Name        string     `json:"name"`
	Duration    float64    `json:"duration,omitempty"`
	MediaItem   *MediaItem `json:"media_item,omitempty"`
}

// PlayerQueue mirrors a Music Assistant queue snapshot. The items field is
// a plain count on queue objects but some events embed the item list, so it
// stays raw until someone asks.
type PlayerQueue struct {
	QueueID        string          `json:"queue_id"`
	Active         bool            `json:"active"`
	DisplayName    string          `json:"display_name,omitempty"`
	Items          json.RawMessage `json:"items,omitempty"`
	ShuffleEnabled bool            `json:"shuffle_enabled"`
	RepeatMode     string          `json:"repeat_mode,omitempty"`
	CurrentIndex   *int            `json:"current_index,omitempty"`
	ElapsedTime    float64         `json:"elapsed_time,omitempty"`
	State          string          `json:"state,omitempty"`
	CurrentItem    *QueueItem      `json:"current_item,omitempty"`
}

// itemList decodes an embedded item array, reporting false when the field
// holds a count or nothing.
func (q *PlayerQueue) itemList() ([]QueueItem, bool) {
	if len(q.Items) == 0 || q.Items[0] != '[' {
		return nil, false
	}
	var items []QueueItem
	if err := json.Unmarshal(q.Items, &items); err != nil {
		return nil, false
	}
	return items, true
}

// searchResult is the shape of a music/search response.
type searchResult struct {
	Artists   []MediaItem `json:"artists,omitempty"`
	Albums    []MediaItem `json:"albums,omitempty"`
	Tracks    []MediaItem `json:"tracks,omitempty"`
	Playlists []MediaItem `json:"playlists,omitempty"`
	Radio     []MediaItem `json:"radio,omitempty"`
}

// Event types pushed by the server.
const (
	eventPlayerAdded      = "player_added"
	eventPlayerUpdated    = "player_updated"
	eventPlayerRemoved    = "player_removed"
	eventQueueAdded       = "queue_added"
	eventQueueUpdated     = "queue_updated"
	eventQueueItemsUpdate = "queue_items_updated"
	eventQueueTimeUpdate  = "queue_time_updated"
)

// Player states.
const (
	stateIdle    = "idle"
	statePlaying = "playing"
	statePaused  = "paused"
)

// Repeat modes.
const (
	repeatOff = "off"
	repeatOne = "one"
	repeatAll = "all"
)
