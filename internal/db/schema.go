package db

const schemaSQL = `
-- ===========================================================================
-- PLAY HISTORY (per-zone recently played)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS play_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  zone_id INTEGER NOT NULL,
  audiopath TEXT NOT NULL,
  title TEXT,
  artist TEXT,
  album TEXT,
  station TEXT,
  audiotype INTEGER NOT NULL DEFAULT 0,
  coverurl TEXT,
  played_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_play_history_zone ON play_history(zone_id, played_at);
CREATE INDEX IF NOT EXISTS idx_play_history_path ON play_history(zone_id, audiopath);

-- ==========================================================================
-- AUDIT LOG (command trail)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  surface TEXT NOT NULL,
  zone_id INTEGER,
  command TEXT NOT NULL,
  outcome TEXT NOT NULL DEFAULT 'ok',
  request_id TEXT,
  message TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_command ON audit_events(command);
CREATE INDEX IF NOT EXISTS idx_audit_events_zone ON audit_events(zone_id) WHERE zone_id IS NOT NULL;
`
