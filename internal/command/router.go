package command

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/alerts"
	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/audit"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/favorites"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
	"github.com/msaudio/audioserver-go/internal/recents"
	"github.com/msaudio/audioserver-go/internal/zone"
)

// Surfaces a command can arrive on, as labelled in metrics and the audit
// trail.
const (
	SurfaceHTTP = "http"
	SurfaceWS   = "ws"
)

// Publisher is the slice of the broadcast hub the router needs.
type Publisher interface {
	Publish(eventType string, payload any)
}

// AuditSink records accepted commands off the dispatch path.
type AuditSink interface {
	Record(e audit.Entry)
}

// AuditLog answers getaudit queries.
type AuditLog interface {
	List(limit int) ([]audit.Event, error)
}

// ProviderFunc yields the active media provider.
type ProviderFunc func() (provider.MediaProvider, error)

// AlertURLFunc renders the absolute URL the miniserver fetches alert media
// from, given a path relative to the alerts root.
type AlertURLFunc func(rel string) string

// Options wires the router's collaborators. Audit, alerts and recents are
// optional; their verbs degrade to empty results or validation errors.
type Options struct {
	Zones     *zone.Manager
	Provider  ProviderFunc
	Favorites *favorites.Service
	Recents   *recents.Service
	Alerts    *alerts.Resolver
	AlertURL  AlertURLFunc
	Events    Publisher
	Audit     AuditSink
	AuditLog  AuditLog
}

// Router executes parsed commands against the zone runtime and the media
// surface and assembles the response envelopes.
type Router struct {
	zones     *zone.Manager
	provider  ProviderFunc
	favorites *favorites.Service
	recents   *recents.Service
	alerts    *alerts.Resolver
	alertURL  AlertURLFunc
	events    Publisher
	audit     AuditSink
	auditLog  AuditLog
	logger    zerolog.Logger
}

func NewRouter(opts Options) *Router {
	return &Router{
		zones:     opts.Zones,
		provider:  opts.Provider,
		favorites: opts.Favorites,
		recents:   opts.Recents,
		alerts:    opts.Alerts,
		alertURL:  opts.AlertURL,
		events:    opts.Events,
		audit:     opts.Audit,
		auditLog:  opts.AuditLog,
		logger:    log.WithComponent("command"),
	}
}

// Origin says where a command came from.
type Origin struct {
	Surface   string
	RequestID string
}

// Response is one command reply. Status carries the HTTP mapping of the
// outcome; websocket writers send the body regardless.
type Response struct {
	Status int
	Body   map[string]any
}

// result is a handler's successful outcome before envelope assembly. An
// empty key defaults to "<verb>_result"; note feeds the audit trail when a
// command was accepted but degraded to a no-op.
type result struct {
	key     string
	payload any
	note    string
}

func ack() result {
	return result{payload: "ok"}
}

func missAck(note string) result {
	return result{payload: "ok", note: note}
}

// Execute runs one command end to end and always produces a response
// envelope; errors are folded into the body, never returned.
func (rt *Router) Execute(ctx context.Context, raw string, payload []byte, origin Origin) Response {
	req, err := Parse(raw)
	if err != nil {
		cmd := trimmed(raw)
		rt.recordAudit(origin, 0, cmd, nil, audit.OutcomeError, err.Error())
		return rt.failure(cmd, err)
	}

	req.Payload, err = NormalizePayload(payload)
	if err != nil {
		rt.recordAudit(origin, req.ZoneID, req.Raw, nil, audit.OutcomeError, err.Error())
		return rt.failure(req.Raw, err)
	}

	metrics.IncCommand(req.Verb, origin.Surface)

	var res result
	if req.Target == TargetCfg {
		res, err = rt.executeCfg(ctx, req)
	} else {
		res, err = rt.executeZone(ctx, req)
	}
	if err != nil {
		appErr := apperrors.Ensure(err)
		rt.logger.Warn().Err(err).Str("command", req.Raw).Msg("command failed")
		rt.recordAudit(origin, req.ZoneID, req.Raw, req.Payload, audit.OutcomeError, appErr.Message)
		return rt.failure(req.Raw, err)
	}

	rt.recordAudit(origin, req.ZoneID, req.Raw, req.Payload, audit.OutcomeOK, res.note)

	key := res.key
	if key == "" {
		key = req.Verb + "_result"
	}
	return Response{
		Status: http.StatusOK,
		Body:   map[string]any{"command": req.Raw, key: res.payload},
	}
}

// failure maps a tagged error onto the error envelope.
func (rt *Router) failure(cmd string, err error) Response {
	appErr := apperrors.Ensure(err)
	metrics.CommandErrorsTotal.WithLabelValues(string(appErr.Kind)).Inc()
	return Response{
		Status: appErr.StatusCode,
		Body:   map[string]any{"command": cmd, "error": appErr.Body()},
	}
}

func (rt *Router) recordAudit(origin Origin, zoneID int, cmd string, payload map[string]any, outcome audit.Outcome, msg string) {
	if rt.audit == nil {
		return
	}
	rt.audit.Record(audit.Entry{
		Surface:   origin.Surface,
		ZoneID:    zoneID,
		Command:   cmd,
		Outcome:   outcome,
		RequestID: origin.RequestID,
		Message:   msg,
		Payload:   payload,
	})
}

// mediaProvider returns the active provider or nil. Provider construction
// failures degrade read verbs to empty results per the provider contract.
func (rt *Router) mediaProvider() provider.MediaProvider {
	if rt.provider == nil {
		return nil
	}
	p, err := rt.provider()
	if err != nil {
		rt.logger.Warn().Err(err).Msg("no media provider")
		return nil
	}
	return p
}

// publishZoneStatus re-broadcasts the zone's snapshot after a successful
// command so every subscriber observes the change, not only the caller.
func (rt *Router) publishZoneStatus(zoneID int) {
	if rt.events == nil {
		return
	}
	entry, ok := rt.zones.Zone(zoneID)
	if !ok {
		return
	}
	rt.events.Publish(broadcast.EventAudio, []*player.Status{entry.Status()})
}

func trimmed(raw string) string {
	if len(raw) > 0 && raw[0] == '/' {
		return raw[1:]
	}
	return raw
}
