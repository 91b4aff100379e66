package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/connectivity"
	"github.com/hamed0406/safezone/internal/domain"
	apimw "github.com/hamed0406/safezone/internal/httpapi/middleware"
	"github.com/hamed0406/safezone/internal/safety"
)

// Safety is the part of safety.Service the API exposes.
type Safety interface {
	GetSOSQueue(ctx context.Context) ([]domain.QueueEntry[domain.SOSPayload], error)
	GetSMSQueue(ctx context.Context) ([]domain.QueueEntry[domain.SMSPayload], error)
	DrainSOSQueue(ctx context.Context, token string) (domain.DrainReport, error)
	DrainSMSQueue(ctx context.Context) (domain.DrainReport, error)
	ClearSOSQueue(ctx context.Context) error
	ClearSMSQueue(ctx context.Context) error
	SendSOS(ctx context.Context, token string, p domain.SOSPayload) (bool, error)
	SendSMS(ctx context.Context, p domain.SMSPayload) (bool, error)
	SessionToken(ctx context.Context) (string, error)

	GetAlertConfig(ctx context.Context) domain.AlertConfig
	SaveAlertConfig(ctx context.Context, p domain.AlertConfigPatch) (domain.AlertConfig, error)

	SetOffline(ctx context.Context, offline bool) bool
	Offline() bool
	Connectivity() *connectivity.Coordinator

	AcknowledgeHighRisk(ctx context.Context, minutes int) error
	SetGlobalMute(ctx context.Context, muted bool) error
	StopProgressiveAlert(ctx context.Context) error
	EscalationStatus(ctx context.Context) safety.EscalationStatus

	Transitions(ctx context.Context) ([]domain.Transition, error)
	Zones() []domain.GeofenceZone
	Primary() *domain.GeofenceZone
	ReloadZones(ctx context.Context) (int, error)
}

type Server struct {
	Logger *zap.Logger
	Safety Safety
	Now    func() time.Time
}

func NewServer(l *zap.Logger, s Safety) *Server {
	return &Server{Logger: l, Safety: s, Now: func() time.Time { return time.Now().UTC() }}
}

// Router mounts the inspection API. Reads need any key, mutations an admin
// key; each group has its own per-IP rate limit.
func (s *Server) Router(keys apimw.Keys, metrics http.Handler, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst), apimw.RequireAny(keys))
			r.Get("/queues/sos", s.handleListSOS)
			r.Get("/queues/sms", s.handleListSMS)
			r.Get("/alert-config", s.handleGetAlertConfig)
			r.Get("/connectivity", s.handleGetConnectivity)
			r.Get("/escalation", s.handleGetEscalation)
			r.Get("/transitions", s.handleTransitions)
			r.Get("/zones", s.handleZones)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst), apimw.RequireAdmin(keys))
			r.Post("/queues/drain", s.handleDrainAll)
			r.Post("/queues/sos/drain", s.handleDrainSOS)
			r.Post("/queues/sms/drain", s.handleDrainSMS)
			r.Delete("/queues/sos", s.handleClearSOS)
			r.Delete("/queues/sms", s.handleClearSMS)
			r.Post("/sos", s.handleSendSOS)
			r.Post("/sms", s.handleSendSMS)
			r.Put("/alert-config", s.handlePutAlertConfig)
			r.Post("/connectivity", s.handleSetConnectivity)
			r.Post("/escalation/ack", s.handleAck)
			r.Post("/escalation/mute", s.handleMute)
			r.Delete("/escalation", s.handleStopEscalation)
			r.Post("/geofences/reload", s.handleReloadZones)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) internal(w http.ResponseWriter, event string, err error) {
	s.Logger.Error(event, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
