package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/mkquotes/internal/cli"
	"horse.fit/mkquotes/internal/db"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Database timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "health does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer sess.Close()

	snapshot, err := sess.pool.QueryHealthSnapshot(sess.ctx)
	if err != nil {
		sess.logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	sess.logger.Info().
		Dur("timeout", *timeout).
		Int64("subjects", snapshot.Subjects).
		Int64("comments", snapshot.Comments).
		Int64("primaries", snapshot.Primaries).
		Msg("database health check passed")

	if outputFormat == outputFormatJSON {
		if err := printJSON(snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Println(formatHealthLine(snapshot))
	return 0
}

func formatHealthLine(snapshot *db.HealthSnapshot) string {
	latest := "none"
	if snapshot.LatestCommentAt != nil {
		latest = formatUTCTimestamp(*snapshot.LatestCommentAt)
	}
	return fmt.Sprintf("ok: subjects=%d comments=%d primaries=%d duplicates=%d latest_comment_at=%s",
		snapshot.Subjects,
		snapshot.Comments,
		snapshot.Primaries,
		snapshot.Comments-snapshot.Primaries,
		latest,
	)
}
