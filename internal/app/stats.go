package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/mkquotes/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	since := fs.String("since", "", "Count comments created on or after this UTC day (YYYY-MM-DD, default today)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	sinceDay := defaultUTCDay()
	if strings.TrimSpace(*since) != "" {
		sinceDay, err = parseUTCDate(*since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --since: %v\n", err)
			return 2
		}
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	stats, err := sess.pool.QueryDedupStats(sess.ctx, sinceDay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query dedup stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	totals := [][]string{
		{"subjects", strconv.FormatInt(stats.Subjects, 10)},
		{"comments", strconv.FormatInt(stats.Comments, 10)},
		{"primaries", strconv.FormatInt(stats.Primaries, 10)},
		{"duplicates", strconv.FormatInt(stats.Duplicates, 10)},
		{"verified", strconv.FormatInt(stats.Verified, 10)},
		{"created_since_" + sinceDay.Format("2006-01-02"), strconv.FormatInt(stats.CreatedSince, 10)},
	}
	if stats.AverageFuzzyScore != nil {
		totals = append(totals, []string{"average_fuzzy_score", strconv.FormatFloat(*stats.AverageFuzzyScore, 'f', 4, 64)})
	}
	if err := writeTable([]string{"metric", "value"}, totals); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render totals table: %v\n", err)
		return 1
	}

	fmt.Println()
	decisionRows := make([][]string, 0, len(stats.Decisions))
	for _, row := range stats.Decisions {
		decisionRows = append(decisionRows, []string{row.Decision, strconv.FormatInt(row.Count, 10)})
	}
	if err := writeTable([]string{"decision", "count"}, decisionRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render decisions table: %v\n", err)
		return 1
	}

	return 0
}
