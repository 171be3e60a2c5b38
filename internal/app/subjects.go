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

func runSubjects(args []string) int {
	fs := flag.NewFlagSet("subjects", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	add := fs.String("add", "", "Create a subject with this display name")
	faction := fs.String("faction", "", "Faction of the subject created with --add")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "subjects does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	if name := strings.TrimSpace(*add); name != "" {
		var factionValue *string
		if trimmed := strings.TrimSpace(*faction); trimmed != "" {
			factionValue = &trimmed
		}
		subject, err := sess.pool.CreateSubject(sess.ctx, name, factionValue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create subject: %v\n", err)
			return 1
		}
		if outputFormat == outputFormatJSON {
			if err := printJSON(subject); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
				return 1
			}
			return 0
		}
		fmt.Printf("subjects created subject_id=%d display_name=%q\n", subject.SubjectID, subject.DisplayName)
		return 0
	}

	subjects, err := sess.pool.ListSubjects(sess.ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list subjects: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(subjects); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(subjects))
	for _, subject := range subjects {
		rows = append(rows, []string{
			strconv.FormatInt(subject.SubjectID, 10),
			truncateForTable(subject.DisplayName, 40),
			pointerStringOrEmpty(subject.Faction),
			strconv.FormatInt(subject.CommentCount, 10),
			strconv.FormatInt(subject.PrimaryCount, 10),
		})
	}
	if err := writeTable([]string{"subject_id", "display_name", "faction", "comments", "primaries"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
