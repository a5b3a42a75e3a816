package worker

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sttworker/internal/common/fsutil"
	"sttworker/internal/journal"
	"sttworker/internal/manager"
	"sttworker/internal/ocs"
)

// Task attempt outcomes, as recorded in metrics and the journal.
const (
	OutcomeSuccess          = "success"
	OutcomeInvalidProvider  = "invalid_provider"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeFailed           = "failed"
)

// reportTimeout bounds final reports issued after the loop context is gone.
const reportTimeout = 30 * time.Second

// progress turns segment start times into monotonic percentages.
type progress struct {
	last float64
	sent bool
}

// next returns the percentage to report for a segment starting at start,
// and false when nothing should be sent.
func (p *progress) next(start, duration float64) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	pct := start / duration * 100
	switch {
	case math.IsNaN(pct):
		return 0, false
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	if p.sent && pct <= p.last {
		return 0, false
	}
	p.last, p.sent = pct, true
	return pct, true
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsProtocol(err):
		return OutcomeInvalidProvider
	case manager.IsModelUnavailable(err):
		return OutcomeModelUnavailable
	default:
		return OutcomeFailed
	}
}

// process runs one task end to end and always reports its outcome.
func (c *Context) process(ctx context.Context, nt *ocs.NextTask) journal.Entry {
	start := time.Now()
	entry := journal.Entry{
		AttemptID: journal.NewAttemptID(),
		TaskID:    nt.Task.ID,
		Provider:  nt.Provider.Name,
		StartedAt: start,
	}
	log := c.logger.With().Int64("task", nt.Task.ID).Str("provider", nt.Provider.Name).Str("attempt", entry.AttemptID).Logger()
	log.Info().Msg("task acquired")
	c.remoteLog(ctx, ocs.LogInfo, fmt.Sprintf("Next task: %d", nt.Task.ID))

	// Reports must go out even when shutdown cancelled ctx mid-task.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	transcript, err := c.attempt(ctx, nt, &entry, log)
	if err == nil {
		err = c.client.ReportResult(reportCtx, nt.Task.ID, map[string]any{"output": transcript}, "")
		if err != nil {
			reportErrorsTotal.WithLabelValues("result").Inc()
			err = fmt.Errorf("report result: %w", err)
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("task failed")
		c.remoteLog(reportCtx, ocs.LogError, err.Error())
		if rerr := c.client.ReportResult(reportCtx, nt.Task.ID, nil, err.Error()); rerr != nil {
			reportErrorsTotal.WithLabelValues("failure").Inc()
			log.Error().Err(rerr).Msg("reporting task failure failed")
		}
	} else {
		log.Info().Int("chars", len(transcript)).Dur("took", time.Since(start)).Msg("task done")
	}

	entry.Outcome = outcomeOf(err)
	if err != nil {
		entry.Error = err.Error()
	}
	entry.Duration = time.Since(start)
	tasksTotal.WithLabelValues(entry.Outcome).Inc()
	taskDuration.WithLabelValues(entry.Outcome).Observe(entry.Duration.Seconds())
	if c.journal != nil {
		if rec, jerr := c.journal.Record(reportCtx, entry); jerr != nil {
			log.Warn().Err(jerr).Msg("journal record failed")
		} else {
			entry = rec
		}
	}
	c.lastTask.Store(&entry)
	return entry
}

// attempt covers validation through transcription. The downloaded input is
// removed before it returns, whatever happened.
func (c *Context) attempt(ctx context.Context, nt *ocs.NextTask, entry *journal.Entry, log zerolog.Logger) (transcript string, err error) {
	var tmp string
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("task panicked")
			err = fmt.Errorf("internal error: %v", r)
		}
		if rmErr := fsutil.RemoveIfExists(tmp); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", tmp).Msg("removing task input failed")
		}
	}()

	modelID, err := ModelIDFromProvider(nt.Provider.Name)
	if err != nil {
		return "", err
	}
	entry.ModelID = modelID
	log.Info().Str("model", modelID).Msg("resolving model")
	c.remoteLog(ctx, ocs.LogInfo, "model: "+modelID)

	model, err := c.models.Acquire(ctx, modelID)
	if err != nil {
		return "", err
	}

	fileID, ok := nt.Task.FileID()
	if !ok {
		return "", protocolErrorf("task %d has no input file", nt.Task.ID)
	}
	tmp, err = c.client.FetchFile(ctx, nt.Task.ID, fileID)
	if err != nil {
		return "", fmt.Errorf("fetch input: %w", err)
	}

	c.remoteLog(ctx, ocs.LogInfo, "generating transcription")
	started := time.Now()
	tr, err := model.Transcribe(ctx, tmp)
	if err != nil {
		return "", err
	}
	entry.AudioSeconds = tr.Duration

	var sb strings.Builder
	var pr progress
	for seg, serr := range tr.Segments {
		if serr != nil {
			return "", serr
		}
		sb.WriteString(seg.Text)
		if pct, send := pr.next(seg.Start, tr.Duration); send {
			if perr := c.client.SetProgress(ctx, nt.Task.ID, pct); perr != nil {
				reportErrorsTotal.WithLabelValues("progress").Inc()
				log.Warn().Err(perr).Float64("progress", pct).Msg("progress report failed")
			}
		}
	}
	elapsed := time.Since(started)
	log.Info().Dur("took", elapsed).Float64("audio_seconds", tr.Duration).Msg("transcription generated")
	c.remoteLog(ctx, ocs.LogInfo, fmt.Sprintf("transcription generated: %.2fs", elapsed.Seconds()))
	return sb.String(), nil
}
