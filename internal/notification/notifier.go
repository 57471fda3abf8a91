// Package notification delivers population run results to chat and
// e-mail services through shoutrrr.
package notification

import (
	"context"
	"io"
	stdlog "log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/ingest"
	"github.com/tphakala/interpro-loader/internal/logger"
)

const (
	component         = "notification"
	defaultMaxRetries = 2
	defaultRetryDelay = 5 * time.Second
)

// Sender delivers one message to every configured service.
// *router.ServiceRouter satisfies it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// RunNotifier sends a summary of each population run.
type RunNotifier struct {
	sender     Sender
	onSuccess  bool
	onFailure  bool
	maxRetries int
	retryDelay time.Duration
	log        logger.Logger
}

// Option configures a RunNotifier.
type Option func(*RunNotifier)

// WithRetries sets how often a failed delivery is retried and the pause
// between attempts.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(n *RunNotifier) {
		n.maxRetries = max(maxRetries, 0)
		n.retryDelay = delay
	}
}

// WithSender replaces the shoutrrr router, mainly for tests.
func WithSender(s Sender) Option {
	return func(n *RunNotifier) { n.sender = s }
}

// New builds a notifier from settings. The service URLs are parsed
// immediately so a typo fails before the run starts.
func New(settings conf.NotificationSettings, log logger.Logger, opts ...Option) (*RunNotifier, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	n := &RunNotifier{
		onSuccess:  settings.OnSuccess,
		onFailure:  settings.OnFailure,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		log:        log.Module(component),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.sender != nil {
		return n, nil
	}

	if len(settings.URLs) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(slices.Clone(settings.URLs)...)
	if err != nil {
		return nil, errors.New(scrub(err)).
			Component(component).
			Category(errors.CategoryConfiguration).
			Context("url_count", len(settings.URLs)).
			Build()
	}
	if settings.Timeout > 0 {
		sender.Timeout = settings.Timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	n.sender = sender
	return n, nil
}

// NotifyRun sends the run summary when the outcome is one the settings
// ask for. Timeouts are not retried since the service may already have
// delivered the message.
func (n *RunNotifier) NotifyRun(ctx context.Context, report *ingest.Report) error {
	if report == nil || !n.wanted(report) {
		return nil
	}
	title, body, err := formatReport(report)
	if err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryGeneric).
			Build()
	}

	params := stypes.Params{}
	params.SetTitle(title)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = firstError(n.sender.Send(body, &params))
		if lastErr == nil {
			n.log.Info("run notification sent",
				logger.String("run_id", report.RunID),
				logger.Int("attempt", attempt))
			return nil
		}
		if isTimeoutError(lastErr) || attempt > n.maxRetries {
			break
		}
		n.log.Debug("run notification failed, retrying",
			logger.Int("attempt", attempt),
			logger.Error(scrub(lastErr)))

		select {
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component(component).
				Category(errors.CategoryCancellation).
				Build()
		case <-time.After(n.retryDelay):
		}
	}

	return errors.New(scrub(lastErr)).
		Component(component).
		Category(errors.CategoryIntegration).
		Priority(errors.PriorityLow).
		Context("run_id", report.RunID).
		Build()
}

func (n *RunNotifier) wanted(report *ingest.Report) bool {
	if report.Outcome == ingest.OutcomeSuccess {
		return n.onSuccess
	}
	return n.onFailure
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// isTimeoutError matches the router's own timeout and gateway timeouts.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "504")
}

// scrub removes tokens embedded in service URLs from err.
func scrub(err error) error {
	return errors.NewStd(errors.ScrubLocation(err.Error()))
}
