package app

import (
	"fmt"
	"io"

	"labrunner/internal/aggregate"
	"labrunner/internal/config"
	"labrunner/internal/logger"
	"labrunner/internal/metrics"
)

func render(s aggregate.Summary, format string) (string, error) {
	switch format {
	case config.FormatJSON:
		data, err := aggregate.JSON(s)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case config.FormatMarkdown:
		return aggregate.Markdown(s), nil
	default:
		return aggregate.Text(s), nil
	}
}

// finish stamps the run id, prints the summary, exports metrics and maps the
// result to an exit code.
func finish(stdout io.Writer, cfg config.Config, log logger.Sink, s aggregate.Summary) int {
	s.RunID = newRunID()
	out, err := render(s, cfg.Format)
	if err != nil {
		log.Log(logger.LevelError, fmt.Sprintf("Failed to render summary: %v", err))
		return exitFailure
	}
	fmt.Fprint(stdout, out)

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Log(logger.LevelWarn, fmt.Sprintf("Failed to write metrics to %s: %v", cfg.MetricsTextfile, err))
		} else {
			log.Log(logger.LevelDebug, "Metrics written to "+cfg.MetricsTextfile)
		}
	}

	if s.Success {
		log.Log(logger.LevelSuccess, fmt.Sprintf("Run %s passed", s.RunID))
		return exitOK
	}
	log.Log(logger.LevelError, fmt.Sprintf("Run %s failed: %d of %d tests failed", s.RunID, s.Failed, s.TotalTests))
	return exitFailure
}
