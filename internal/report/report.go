// Package report renders and delivers digest and alert reports.
package report

import (
	"context"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/errors"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/logging"
)

// Package-level logger specific to the report service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger("logs/report.log", "report", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.NewDiscardLogger("report", serviceLevelVar)
	}
}

// Coverage describes the window a report covers and whether the fetch was
// cut short by the result cap.
type Coverage struct {
	WindowStart  time.Time
	WindowEnd    time.Time
	Truncated    bool
	TotalResults int
}

// Digest is the periodic summary handed over by the digest workflow.
// Both buckets arrive rarity-sorted.
type Digest struct {
	NodeName string
	Coverage Coverage
	New      []inat.Observation // observed within the age threshold, or unknown date
	Old      []inat.Observation // observed earlier
}

// Alert is the watchlist notification handed over by the alert workflow.
type Alert struct {
	NodeName     string
	Coverage     Coverage
	Observations []inat.Observation
}

// Service delivers rendered reports to the configured shoutrrr URLs.
// With no URLs configured delivery is log-only, used by dry runs and tests.
type Service struct {
	nodeName string
	sender   *router.ServiceRouter
}

// NewService creates a delivery service for the configured notify URLs.
func NewService(settings *conf.Settings) (*Service, error) {
	s := &Service{nodeName: settings.Main.Name}

	if len(settings.Notify.URLs) > 0 {
		sender, err := shoutrrr.CreateSender(settings.Notify.URLs...)
		if err != nil {
			return nil, errors.Newf("invalid notify URL: %w", err).
				Category(errors.CategoryConfiguration).
				Component("report").
				Build()
		}
		sender.SetLogger(log.New(io.Discard, "", 0))
		s.sender = sender
	}

	return s, nil
}

// SendDigest renders and delivers a digest report. Delivery failure is a
// workflow failure for the caller.
func (s *Service) SendDigest(ctx context.Context, d *Digest) error {
	reportID := uuid.New().String()
	title, body := renderDigest(d)

	logger.Info("sending digest report",
		"report_id", reportID,
		"new", len(d.New),
		"old", len(d.Old),
		"truncated", d.Coverage.Truncated)

	return s.deliver(ctx, reportID, title, body)
}

// SendAlert renders and delivers a watchlist alert.
func (s *Service) SendAlert(ctx context.Context, a *Alert) error {
	reportID := uuid.New().String()
	title, body := renderAlert(a)

	logger.Info("sending alert report",
		"report_id", reportID,
		"observations", len(a.Observations))

	return s.deliver(ctx, reportID, title, body)
}

func (s *Service) deliver(ctx context.Context, reportID, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.sender == nil {
		// log-only delivery
		logger.Info("report delivered to log only",
			"report_id", reportID,
			"title", title,
			"body", body)
		return nil
	}

	params := stypes.Params{}
	params.SetTitle(title)

	errs := s.sender.Send(body, &params)
	for _, err := range errs {
		if err != nil {
			return errors.Newf("report delivery failed: %w", err).
				Category(errors.CategoryReporting).
				Component("report").
				Context("report_id", reportID).
				Build()
		}
	}

	logger.Info("report delivered", "report_id", reportID)
	return nil
}
