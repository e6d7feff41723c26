package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
	"github.com/stopthephish/phishwatch/internal/utils"
)

type notifierService struct {
	cfg    *config.NotifierConfig
	log    logger.Logger
	client *http.Client
}

func NewNotifierService(cfg *config.NotifierConfig, log logger.Logger) interfaces.NotifierService {
	return &notifierService{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify publishes the verdict to the configured ntfy topic. Verdicts outside
// the NotifyOn filter are skipped silently.
func (s *notifierService) Notify(ctx context.Context, email *dto.EmailMessage, result *dto.ClassificationResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "notifierService.Notify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagMessageUID(span, email.UID)

	if s.cfg.Topic == "" {
		return nil
	}
	if !utils.IsStringInSlice(result.Classification.String(), s.cfg.NotifyOn) {
		span.LogKV("event", "skipped", "classification", result.Classification.String())
		return nil
	}

	body := formatNotification(email, result)
	endpoint := strings.TrimSuffix(s.cfg.URL, "/") + "/" + s.cfg.Topic

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Title", utils.SanitizeHeaderValue(s.cfg.Title))

	resp, err := s.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "notification request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) // nolint: errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("notification failed with status code %d", resp.StatusCode)
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("Notification sent for message %d (%s)", email.UID, result.Classification)
	return nil
}

func formatNotification(email *dto.EmailMessage, result *dto.ClassificationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SENDER: %s\n", email.Sender)
	fmt.Fprintf(&sb, "SUBJECT: %s\n", utils.SanitizeHeaderValue(email.Subject))
	fmt.Fprintf(&sb, "CLASSIFICATION: %s\n", result.Classification)
	if result.Reason != "" {
		fmt.Fprintf(&sb, "REASON: %s\n", result.Reason)
	}
	if result.Advice != "" {
		fmt.Fprintf(&sb, "ADVICE: %s\n", result.Advice)
	}
	return sb.String()
}
