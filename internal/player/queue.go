package player

// QueueItem is one entry of a zone's playback queue. AudioPath carries the
// same canonical URI used everywhere else in the system.
type QueueItem struct {
	QIndex    int       `json:"qindex"`
	UniqueID  string    `json:"unique_id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	AudioPath string    `json:"audiopath"`
	AudioType AudioType `json:"audiotype"`
	CoverURL  string    `json:"coverurl"`
	Duration  int       `json:"duration"`
	Station   string    `json:"station"`
	User      string    `json:"user"`
}

// Queue is a zone's current queue view. It is replaced atomically per backend
// update; readers always see a complete snapshot.
type Queue struct {
	ZoneID     int         `json:"zoneid"`
	Items      []QueueItem `json:"items"`
	Shuffle    bool        `json:"shuffle"`
	Start      int         `json:"start"`
	TotalItems int         `json:"totalitems"`
}

// Window returns a paginated view of the queue. A limit <= 0 returns
// everything from offset on.
func (q *Queue) Window(offset, limit int) *Queue {
	out := &Queue{
		ZoneID:     q.ZoneID,
		Shuffle:    q.Shuffle,
		Start:      offset,
		TotalItems: q.TotalItems,
		Items:      []QueueItem{},
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(q.Items) {
		return out
	}
	end := len(q.Items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out.Items = append(out.Items, q.Items[offset:end]...)
	return out
}

// Clone returns a deep copy of the queue.
func (q *Queue) Clone() *Queue {
	out := *q
	out.Items = append([]QueueItem(nil), q.Items...)
	return &out
}
