package imap

import (
	"context"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	"github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/internal/tracing"
)

// drain processes every unseen message the ledger has not recorded yet. It
// runs once after the folder is selected and again after every idle wake, so
// nothing is missed between push signals.
func (s *monitorService) drain(ctx context.Context, transport interfaces.MailTransport) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.drain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	uids, err := transport.UnseenUIDs()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.Int("unseen_count", len(uids)))

	// Messages that left the unseen set were read or deleted elsewhere;
	// their ledger entries are dead weight
	s.ledger.Prune(uids)

	pending := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if !s.ledger.IsProcessed(uid) {
			pending = append(pending, uid)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	s.log.Infof("Processing %d new message(s)", len(pending))
	span.LogFields(tracingLog.Int("pending_count", len(pending)))

	for _, uid := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processOne(ctx, transport, uid); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	return nil
}

// processOne runs the full pipeline for a single message. Only connection
// loss propagates as an error; every per-message failure is logged, the
// message is marked processed, and the drain continues.
func (s *monitorService) processOne(ctx context.Context, transport interfaces.MailTransport, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.processOne")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagMessageUID(span, uid)

	processingID := uuid.New().String()
	span.SetTag(tracing.SpanTagProcessingID, processingID)

	raw, err := transport.FetchRaw(uid)
	if err != nil {
		if errors.IsConnectionError(err) {
			tracing.TraceErr(span, err)
			return err
		}
		s.log.Errorf("[%s] Fetch failed for message %d, skipping: %v", processingID, uid, err)
		s.markProcessed(uid)
		return nil
	}
	if len(raw) == 0 {
		s.log.Warnf("[%s] Message %d has no retrievable content, skipping", processingID, uid)
		s.markProcessed(uid)
		return nil
	}

	email := s.parser.Parse(uid, raw)

	// Reputation lists short-circuit the classifier entirely
	result, matched := s.reputation.Classify(email.Sender)
	if matched {
		s.log.Infof("[%s] Sender %s resolved by reputation list: %s", processingID, email.Sender, result.Classification)
	} else {
		result, err = s.classifier.ClassifyEmail(ctx, email)
		if err != nil {
			s.log.Errorf("[%s] Classifier failed for message %d: %v", processingID, uid, err)
			result = &dto.ClassificationResult{
				Classification: enum.VerdictUnknown,
				Reason:         "Classification unavailable",
				Advice:         "Treat this message with caution until reviewed manually.",
			}
		}
	}

	if err := s.notifier.Notify(ctx, email, result); err != nil {
		s.log.Errorf("[%s] Notification failed for message %d: %v", processingID, uid, err)
	}

	s.markProcessed(uid)

	if result.Classification.Malicious() && s.cfg.MoveToFolder != "" {
		if err := transport.Move(uid, s.cfg.MoveToFolder); err != nil {
			s.log.Errorf("[%s] Unable to move message %d to %s: %v", processingID, uid, s.cfg.MoveToFolder, err)
		} else {
			s.log.Infof("[%s] Moved message %d to %s", processingID, uid, s.cfg.MoveToFolder)
		}
	}

	s.log.Infof("[%s] Message %d from %s classified as %s", processingID, uid, email.Sender, result.Classification)
	return nil
}

// markProcessed records the UID. A failed ledger write is logged and
// tolerated; worst case is one duplicate notification after a restart.
func (s *monitorService) markProcessed(uid uint32) {
	if err := s.ledger.MarkProcessed(uid); err != nil {
		s.log.Warnf("Unable to persist processed state for message %d: %v", uid, err)
	}

	s.statusMutex.Lock()
	s.status.ProcessedTotal++
	s.statusMutex.Unlock()
}
