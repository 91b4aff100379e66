package safety

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
)

// SOS queue.

func (s *Service) QueueSOS(ctx context.Context, p domain.SOSPayload) (domain.QueueEntry[domain.SOSPayload], error) {
	return s.sosQ.Enqueue(ctx, p)
}

func (s *Service) GetSOSQueue(ctx context.Context) ([]domain.QueueEntry[domain.SOSPayload], error) {
	return s.sosQ.PeekAll(ctx)
}

func (s *Service) ClearSOSQueue(ctx context.Context) error { return s.sosQ.Clear(ctx) }

// DrainSOSQueue runs one pass through the connectivity coordinator, so it
// waits for any drain already in flight and shares its prune rule.
func (s *Service) DrainSOSQueue(ctx context.Context, token string) (domain.DrainReport, error) {
	o, err := s.coord.DrainWith(ctx, s.sosQ.Name(), func(ctx context.Context) (domain.DrainReport, error) {
		return s.drainSOS(ctx, token)
	})
	return o.Report, err
}

func (s *Service) drainSOS(ctx context.Context, token string) (domain.DrainReport, error) {
	if s.sos == nil {
		return domain.DrainReport{}, fmt.Errorf("drain sos: no backend configured")
	}
	return s.sosQ.Drain(ctx, func(ctx context.Context, e domain.QueueEntry[domain.SOSPayload]) error {
		return s.sos.Trigger(ctx, token, e)
	})
}

// SendSOS persists the alert first, then tries to deliver it right away when
// online. The queued entry carries the idempotency key used for the direct
// attempt, so a later drain of the same alert is deduplicated by the backend.
func (s *Service) SendSOS(ctx context.Context, token string, p domain.SOSPayload) (delivered bool, err error) {
	e, err := s.sosQ.Enqueue(ctx, p)
	if err != nil {
		return false, err
	}
	if s.Offline() || s.sos == nil {
		s.log.Info("sos_queued_offline", zap.String("id", e.ID))
		return false, nil
	}
	if err := s.sos.Trigger(ctx, token, e); err != nil {
		s.log.Warn("sos_direct_send_failed", zap.String("id", e.ID), zap.Error(err))
		return false, nil
	}
	if _, err := s.sosQ.Prune(ctx, []string{e.ID}); err != nil {
		s.log.Warn("sos_prune_error", zap.String("id", e.ID), zap.Error(err))
	}
	return true, nil
}

// SMS queue.

func (s *Service) QueueSMS(ctx context.Context, p domain.SMSPayload) (domain.QueueEntry[domain.SMSPayload], error) {
	return s.smsQ.Enqueue(ctx, p)
}

func (s *Service) GetSMSQueue(ctx context.Context) ([]domain.QueueEntry[domain.SMSPayload], error) {
	return s.smsQ.PeekAll(ctx)
}

func (s *Service) ClearSMSQueue(ctx context.Context) error { return s.smsQ.Clear(ctx) }

func (s *Service) DrainSMSQueue(ctx context.Context) (domain.DrainReport, error) {
	o, err := s.coord.DrainWith(ctx, s.smsQ.Name(), nil)
	return o.Report, err
}

func (s *Service) drainSMS(ctx context.Context) (domain.DrainReport, error) {
	if s.sms == nil {
		return domain.DrainReport{}, fmt.Errorf("drain sms: no transport configured")
	}
	return s.smsQ.Drain(ctx, func(ctx context.Context, e domain.QueueEntry[domain.SMSPayload]) error {
		return s.sms.Send(ctx, e.Payload.Recipients, e.Payload.Message)
	})
}

// SendSMS mirrors SendSOS for text messages.
func (s *Service) SendSMS(ctx context.Context, p domain.SMSPayload) (delivered bool, err error) {
	e, err := s.smsQ.Enqueue(ctx, p)
	if err != nil {
		return false, err
	}
	if s.Offline() || s.sms == nil {
		s.log.Info("sms_queued_offline", zap.String("id", e.ID))
		return false, nil
	}
	if err := s.sms.Send(ctx, p.Recipients, p.Message); err != nil {
		s.log.Warn("sms_direct_send_failed", zap.String("id", e.ID), zap.Error(err))
		return false, nil
	}
	if _, err := s.smsQ.Prune(ctx, []string{e.ID}); err != nil {
		s.log.Warn("sms_prune_error", zap.String("id", e.ID), zap.Error(err))
	}
	return true, nil
}

// pending counts entries waiting in both queues.
func (s *Service) pending(ctx context.Context) int {
	n := 0
	if list, err := s.sosQ.PeekAll(ctx); err == nil {
		n += len(list)
	}
	if list, err := s.smsQ.PeekAll(ctx); err == nil {
		n += len(list)
	}
	return n
}
