package cli

import (
	"math"
	"sync"

	"github.com/pterm/pterm"
)

const progressSteps = 100

type progressBar interface {
	Add(int) *pterm.ProgressbarPrinter
	Stop() (*pterm.ProgressbarPrinter, error)
}

type progressBarFactory func(title string, total int) (progressBar, error)

var defaultProgressBarFactory progressBarFactory = func(title string, total int) (progressBar, error) {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return nil, err
	}
	return bar, nil
}

// ProgressReporter turns completion fractions into progress bar increments.
type ProgressReporter struct {
	title   string
	factory progressBarFactory
	bar     progressBar
	done    int
	mu      sync.Mutex
}

// ProgressReporterOption allows customizing ProgressReporter behavior at creation time.
type ProgressReporterOption func(*ProgressReporter)

// WithProgressOutput enables or disables terminal output for a ProgressReporter.
func WithProgressOutput(enabled bool) ProgressReporterOption {
	return func(pr *ProgressReporter) {
		if !enabled {
			pr.factory = nil
		}
	}
}

func withProgressBarFactory(factory progressBarFactory) ProgressReporterOption {
	return func(pr *ProgressReporter) {
		pr.factory = factory
	}
}

// NewProgressReporter creates a reporter whose bar is started lazily on the first update.
func NewProgressReporter(title string, opts ...ProgressReporterOption) *ProgressReporter {
	pr := &ProgressReporter{title: title, factory: defaultProgressBarFactory}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Update moves the bar to fraction, a value in [0, 1]. Updates never move the bar backwards.
func (pr *ProgressReporter) Update(fraction float64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	target := int(math.Round(math.Max(0, math.Min(1, fraction)) * progressSteps))
	if target <= pr.done {
		return
	}
	if pr.bar == nil && pr.factory != nil {
		bar, err := pr.factory(pr.title, progressSteps)
		if err != nil {
			// drawing is best effort; keep counting without a bar
			pr.factory = nil
		} else {
			pr.bar = bar
		}
	}
	if pr.bar != nil {
		pr.bar.Add(target - pr.done)
	}
	pr.done = target
}

// Done returns the completed steps out of 100.
func (pr *ProgressReporter) Done() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.done
}

// Stop stops the bar if one was started.
func (pr *ProgressReporter) Stop() error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.bar == nil {
		return nil
	}
	_, err := pr.bar.Stop()
	pr.bar = nil
	return err
}
