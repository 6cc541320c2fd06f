// Package audit reports provisioning chains that need an operator: failed
// chains, and open chains that have not moved for too long.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
)

const failedReportLimit = 100

// ChainSource is the part of the host runtime the auditor reads.
type ChainSource interface {
	FailedChains(ctx context.Context, limit int) ([]model.Chain, error)
	StalledChains(ctx context.Context, before time.Time) ([]model.Chain, error)
}

type Report struct {
	Failed  []model.Chain
	Stalled []model.Chain
}

type Auditor struct {
	src        ChainSource
	staleAfter time.Duration
	now        func() time.Time
}

func New(src ChainSource, staleAfter time.Duration) *Auditor {
	return &Auditor{src: src, staleAfter: staleAfter, now: time.Now}
}

// RunOnce collects and logs every chain needing attention.
func (a *Auditor) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	var err error
	if rep.Failed, err = a.src.FailedChains(ctx, failedReportLimit); err != nil {
		return Report{}, fmt.Errorf("audit failed chains: %w", err)
	}
	if rep.Stalled, err = a.src.StalledChains(ctx, a.now().Add(-a.staleAfter)); err != nil {
		return Report{}, fmt.Errorf("audit stalled chains: %w", err)
	}

	for _, c := range rep.Failed {
		fields := logrus.Fields{"chain": c.ID, "origin": c.Origin, "signer": c.Signer, "error": c.LastError}
		if c.FailedStep != nil && *c.FailedStep < len(c.Steps) {
			step := c.Steps[*c.FailedStep]
			fields["step"] = *c.FailedStep
			fields["kind"] = step.Kind
			fields["account"] = step.Account
		}
		logging.Logger.WithFields(fields).Warn("Chain failed and awaits remediation")
	}
	for _, c := range rep.Stalled {
		logging.Logger.WithFields(logrus.Fields{
			"chain":     c.ID,
			"status":    c.Status,
			"completed": c.Completed,
			"since":     c.UpdatedAt,
		}).Warn("Chain stalled")
	}
	if len(rep.Failed) == 0 && len(rep.Stalled) == 0 {
		logging.Logger.Debug("Chain audit clean")
	}
	return rep, nil
}

// Schedule registers the audit on c under spec. Each run is bounded by timeout.
func (a *Auditor) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := a.RunOnce(ctx); err != nil {
			logging.Logger.WithError(err).Error("Chain audit failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule chain audit %q: %w", spec, err)
	}
	return id, nil
}
