package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/connectivity"
	"github.com/hamed0406/safezone/internal/domain"
)

type queueView[T any] struct {
	Count   int                    `json:"count"`
	Entries []domain.QueueEntry[T] `json:"entries"`
}

func newQueueView[T any](entries []domain.QueueEntry[T]) queueView[T] {
	if entries == nil {
		entries = []domain.QueueEntry[T]{}
	}
	return queueView[T]{Count: len(entries), Entries: entries}
}

func (s *Server) handleListSOS(w http.ResponseWriter, r *http.Request) {
	list, err := s.Safety.GetSOSQueue(r.Context())
	if err != nil {
		s.internal(w, "sos_queue_list_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newQueueView(list))
}

func (s *Server) handleListSMS(w http.ResponseWriter, r *http.Request) {
	list, err := s.Safety.GetSMSQueue(r.Context())
	if err != nil {
		s.internal(w, "sms_queue_list_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newQueueView(list))
}

type drainSOSPayload struct {
	Token string `json:"token"`
}

func (s *Server) handleDrainSOS(w http.ResponseWriter, r *http.Request) {
	var p drainSOSPayload
	if r.ContentLength > 0 {
		if err := decode(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "bad payload")
			return
		}
	}
	if p.Token == "" {
		tok, err := s.Safety.SessionToken(r.Context())
		if err != nil {
			writeError(w, http.StatusBadRequest, "token required")
			return
		}
		p.Token = tok
	}
	rep, err := s.Safety.DrainSOSQueue(r.Context(), p.Token)
	if err != nil {
		s.internal(w, "sos_drain_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDrainSMS(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Safety.DrainSMSQueue(r.Context())
	if err != nil {
		s.internal(w, "sms_drain_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleDrainAll runs the full SOS then SMS sequence, waiting for any drain
// already in flight. Per-queue errors are reported in the body.
func (s *Server) handleDrainAll(w http.ResponseWriter, r *http.Request) {
	out, err := s.Safety.Connectivity().DrainNow(r.Context())
	if err != nil {
		s.internal(w, "drain_all_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomeViews(out)})
}

func (s *Server) handleClearSOS(w http.ResponseWriter, r *http.Request) {
	if err := s.Safety.ClearSOSQueue(r.Context()); err != nil {
		s.internal(w, "sos_clear_error", err)
		return
	}
	s.Logger.Info("sos_queue_cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSMS(w http.ResponseWriter, r *http.Request) {
	if err := s.Safety.ClearSMSQueue(r.Context()); err != nil {
		s.internal(w, "sms_clear_error", err)
		return
	}
	s.Logger.Info("sms_queue_cleared")
	w.WriteHeader(http.StatusNoContent)
}

type sendSOSPayload struct {
	Token     string        `json:"token"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Message   string        `json:"message"`
	ZoneID    domain.ZoneID `json:"zone_id"`
}

func (s *Server) handleSendSOS(w http.ResponseWriter, r *http.Request) {
	var p sendSOSPayload
	if err := decode(r, &p); err != nil || strings.TrimSpace(p.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.Token == "" {
		p.Token, _ = s.Safety.SessionToken(r.Context())
	}
	delivered, err := s.Safety.SendSOS(r.Context(), p.Token, domain.SOSPayload{
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Message:     p.Message,
		ZoneID:      p.ZoneID,
		TriggeredAt: s.Now(),
	})
	if err != nil {
		s.internal(w, "sos_send_error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered, "queued": !delivered})
}

func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var p domain.SMSPayload
	if err := decode(r, &p); err != nil || len(p.Recipients) == 0 || p.Message == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	delivered, err := s.Safety.SendSMS(r.Context(), p)
	if err != nil {
		s.internal(w, "sms_send_error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered, "queued": !delivered})
}

func (s *Server) handleGetAlertConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Safety.GetAlertConfig(r.Context()))
}

func (s *Server) handlePutAlertConfig(w http.ResponseWriter, r *http.Request) {
	var p domain.AlertConfigPatch
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	cfg, err := s.Safety.SaveAlertConfig(r.Context(), p)
	if err != nil {
		s.internal(w, "alert_config_save_error", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type connectivityView struct {
	Offline    bool  `json:"offline"`
	AutoDetect bool  `json:"auto_detect"`
	LastDrain  []any `json:"last_drain"`
}

func (s *Server) connectivity() connectivityView {
	c := s.Safety.Connectivity()
	return connectivityView{Offline: s.Safety.Offline(), AutoDetect: c.AutoDetect(), LastDrain: outcomeViews(c.LastOutcomes())}
}

func outcomeViews(outcomes []connectivity.Outcome) []any {
	out := []any{}
	for _, o := range outcomes {
		item := map[string]any{"queue": o.Queue, "report": o.Report}
		if o.Err != nil {
			item["error"] = o.Err.Error()
		}
		out = append(out, item)
	}
	return out
}

func (s *Server) handleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connectivity())
}

type connectivityPayload struct {
	Offline *bool `json:"offline"`
}

func (s *Server) handleSetConnectivity(w http.ResponseWriter, r *http.Request) {
	var p connectivityPayload
	if err := decode(r, &p); err != nil || p.Offline == nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	started := s.Safety.SetOffline(r.Context(), *p.Offline)
	s.Logger.Info("connectivity_toggled", zap.Bool("offline", *p.Offline), zap.Bool("drain_started", started))
	v := s.connectivity()
	writeJSON(w, http.StatusOK, map[string]any{"offline": v.Offline, "drain_started": started})
}

func (s *Server) handleGetEscalation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Safety.EscalationStatus(r.Context()))
}

type ackPayload struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var p ackPayload
	if err := decode(r, &p); err != nil || p.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}
	if err := s.Safety.AcknowledgeHighRisk(r.Context(), p.Minutes); err != nil {
		s.internal(w, "escalation_ack_error", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Safety.EscalationStatus(r.Context()))
}

type mutePayload struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var p mutePayload
	if err := decode(r, &p); err != nil || p.Muted == nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Safety.SetGlobalMute(r.Context(), *p.Muted); err != nil {
		s.internal(w, "escalation_mute_error", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Safety.EscalationStatus(r.Context()))
}

func (s *Server) handleStopEscalation(w http.ResponseWriter, r *http.Request) {
	if err := s.Safety.StopProgressiveAlert(r.Context()); err != nil {
		s.internal(w, "escalation_stop_error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Safety.Transitions(r.Context())
	if err != nil {
		s.internal(w, "transitions_list_error", err)
		return
	}
	if list == nil {
		list = []domain.Transition{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.Safety.Zones()
	if zones == nil {
		zones = []domain.GeofenceZone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "primary": s.Safety.Primary()})
}

func (s *Server) handleReloadZones(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n, err := s.Safety.ReloadZones(r.Context())
	if err != nil {
		s.Logger.Warn("zone_reload_error", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.Logger.Info("zones_reloaded", zap.Int("zones", n), zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]int{"zones": n})
}
