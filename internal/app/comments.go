package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/mkquotes/internal/cli"
	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/dedup"
	payloadschema "horse.fit/mkquotes/schema"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	subjectID := fs.Int64("subject", 0, "Subject id")
	content := fs.String("content", "", "Comment text (use --content-file for long text)")
	contentFile := fs.String("content-file", "", "Read comment text from a file, or - for stdin")
	sourceURL := fs.String("source-url", "", "Source URL, logged with the check")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *subjectID <= 0 {
		fmt.Fprintln(os.Stderr, "--subject is required")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	text := *content
	if path := strings.TrimSpace(*contentFile); path != "" {
		raw, err := readInput(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read content: %v\n", err)
			return 1
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "--content or --content-file is required")
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	result, err := sess.service.CheckForDuplicates(sess.ctx, *subjectID, text, *sourceURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"is_duplicate", strconv.FormatBool(result.IsDuplicate)},
		{"signal", string(result.Signal)},
		{"duplicate_of", pointerInt64OrEmpty(result.DuplicateOf)},
		{"duplicate_group", pointerStringOrEmpty(result.DuplicateGroup)},
		{"best_score", strconv.FormatFloat(result.BestScore, 'f', 4, 64)},
		{"candidates_scanned", strconv.Itoa(result.CandidateCount)},
		{"similar_comments", strconv.Itoa(len(result.SimilarComments))},
	}
	if err := writeTable([]string{"field", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runAdd(args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	payloadFile := fs.String("file", "-", "Comment payload JSON file, or - for stdin")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	raw, err := readInput(*payloadFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	payload, err := payloadschema.ValidateCommentPayload(json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	stored, err := sess.service.CreateComment(sess.ctx, dedup.NewComment{
		SubjectID:         payload.SubjectID,
		Content:           payload.Content,
		SourceURL:         payload.SourceURL,
		SourcePlatform:    payload.SourcePlatform,
		SourceType:        payload.SourceType,
		SourceName:        payload.SourceName,
		SourceCredibility: payload.SourceCredibility,
		Keywords:          payload.Keywords,
		CommentDate:       payload.ParsedCommentDate(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store comment: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stored); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf(
		"add comment_id=%d subject_id=%d is_duplicate=%t duplicate_of=%s duplicate_group=%s language=%s\n",
		stored.CommentID,
		stored.SubjectID,
		!stored.IsPrimary(),
		pointerInt64OrEmpty(stored.DuplicateOf),
		stored.DuplicateGroup,
		stored.Language,
	)
	return 0
}

func runPrimaries(args []string) int {
	fs := flag.NewFlagSet("primaries", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	subjectID := fs.Int64("subject", 0, "Subject id")
	limit := fs.Int("limit", 0, "Newest N primaries of --subject (0 uses PRIMARY_LIST_LIMIT)")
	platform := fs.String("platform", "", "Filter by source platform")
	verified := fs.String("verified", "", "Filter by verification: true or false")
	from := fs.String("from", "", "Comment date from (YYYY-MM-DD, inclusive)")
	to := fs.String("to", "", "Comment date to (YYYY-MM-DD, inclusive)")
	page := fs.Int("page", 0, "Page number; enables the filtered listing")
	pageSize := fs.Int("page-size", dedup.DefaultPageSize, "Page size for the filtered listing")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "primaries does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	verifiedFilter, err := parseOptionalBool(*verified)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --verified: %v\n", err)
		return 2
	}
	fromDay, err := parseOptionalDay(*from, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		return 2
	}
	toDay, err := parseOptionalDay(*to, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
		return 2
	}

	filtered := *page > 0 || strings.TrimSpace(*platform) != "" || verifiedFilter != nil || fromDay != nil || toDay != nil
	if !filtered && *subjectID <= 0 {
		fmt.Fprintln(os.Stderr, "--subject is required unless a filter or --page is given")
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	var items []dedup.PrimaryComment
	var output any
	if filtered {
		filter := dedup.ListFilter{
			Platform: strings.ToLower(strings.TrimSpace(*platform)),
			Verified: verifiedFilter,
			From:     fromDay,
			To:       toDay,
			Page:     *page,
			PageSize: *pageSize,
		}
		if *subjectID > 0 {
			filter.SubjectID = subjectID
		}
		result, err := sess.service.ListPrimaryComments(sess.ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list primaries: %v\n", err)
			return 1
		}
		items = result.Items
		output = result
	} else {
		items, err = sess.service.GetPrimaryComments(sess.ctx, *subjectID, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list primaries: %v\n", err)
			return 1
		}
		output = items
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeTable(
		[]string{"comment_id", "subject_id", "comment_date", "platform", "verified", "duplicates", "content"},
		primaryRows(items),
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func primaryRows(items []dedup.PrimaryComment) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.CommentID, 10),
			strconv.FormatInt(item.SubjectID, 10),
			formatUTCTimestamp(item.CommentDate),
			item.SourcePlatform,
			strconv.FormatBool(item.IsVerified),
			strconv.Itoa(len(item.Duplicates)),
			truncateForTable(item.Content, 60),
		})
	}
	return rows
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	unset := fs.Bool("unset", false, "Clear the verified flag instead of setting it")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	commentID, err := parseCommentIDArg(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: mkquotes verify [--unset] <comment_id>: %v\n", err)
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	comment, err := sess.service.SetVerified(sess.ctx, commentID, !*unset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update comment: %v\n", err)
		if errors.Is(err, dedup.ErrCommentNotFound) {
			return 2
		}
		return 1
	}

	fmt.Printf("verify comment_id=%d is_verified=%t\n", comment.CommentID, comment.IsVerified)
	return 0
}

func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	commentID, err := parseCommentIDArg(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: mkquotes delete <comment_id>: %v\n", err)
		return 2
	}

	sess, err := openSession(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	result, err := sess.service.DeleteComment(sess.ctx, commentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete comment: %v\n", err)
		if errors.Is(err, dedup.ErrCommentNotFound) {
			return 2
		}
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(struct {
			CommentID int64 `json:"comment_id"`
			db.DeleteCommentResult
		}{commentID, result}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf(
		"delete comment_id=%d deleted=%d released=%d repointed=%d\n",
		commentID,
		result.Deleted,
		result.Released,
		result.Repointed,
	)
	return 0
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(trimmed)
}
