package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/mkquotes/internal/cli"
	"horse.fit/mkquotes/internal/config"
	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/dedup"
	"horse.fit/mkquotes/internal/globaltime"
	"horse.fit/mkquotes/internal/langdetect"
	"horse.fit/mkquotes/internal/logging"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

// session is an open database connection plus the service built on it, scoped
// to one CLI command.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *config.Config
	pool    *db.Pool
	logger  zerolog.Logger
	service *dedup.Service
}

func (s *session) Close() {
	if s == nil {
		return
	}
	if s.pool != nil {
		_ = s.pool.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func newDedupService(cfg *config.Config, store dedup.Store, logger zerolog.Logger) *dedup.Service {
	return dedup.NewService(store, logger, dedup.Options{
		WindowDays:   cfg.DedupWindowDays,
		Threshold:    cfg.DedupSimilarityThreshold,
		DefaultLimit: cfg.PrimaryListLimit,
		Languages:    langdetect.Detector{},
	})
}

func openSession(timeout time.Duration, envLoader *cli.EnvLoader) (*session, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &session{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		pool:    pool,
		logger:  logger,
		service: newDedupService(cfg, pool, logger),
	}, nil
}

func defaultUTCDay() time.Time {
	return globaltime.StartOfDayUTC()
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func parseUTCDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	day, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), nil
}

// parseOptionalDay returns nil for an empty flag. With endOfDay the result is
// the start of the following day, for half-open ranges.
func parseOptionalDay(raw string, endOfDay bool) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	day, err := parseUTCDate(raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		day = day.Add(24 * time.Hour)
	}
	return &day, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, fmt.Errorf("must be true or false")
	}
	return &value, nil
}

func parseCommentIDArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one comment id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("comment id must be a positive integer")
	}
	return id, nil
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.Join(strings.Fields(value), " ")
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func pointerStringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func pointerInt64OrEmpty(value *int64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatInt(*value, 10)
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}
