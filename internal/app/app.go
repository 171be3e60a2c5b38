package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "serve":
		return runServe(args[1:])
	case "check":
		return runCheck(args[1:])
	case "add":
		return runAdd(args[1:])
	case "primaries":
		return runPrimaries(args[1:])
	case "subjects":
		return runSubjects(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "stats":
		return runStats(args[1:])
	case "validate":
		return runValidate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "mkquotes CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  mkquotes <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "  check      Check text against stored comments without writing")
	fmt.Fprintln(os.Stderr, "  add        Store a comment from a JSON payload file")
	fmt.Fprintln(os.Stderr, "  primaries  List primary comments with duplicate provenance")
	fmt.Fprintln(os.Stderr, "  subjects   List subjects, or add one with --add")
	fmt.Fprintln(os.Stderr, "  verify     Mark a comment verified (or --unset)")
	fmt.Fprintln(os.Stderr, "  delete     Delete a comment and re-elect its group primary")
	fmt.Fprintln(os.Stderr, "  stats      Show dedup counters and decisions")
	fmt.Fprintln(os.Stderr, "  validate   Validate comment payload JSON files against the schema")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"mkquotes <command> -h\" for command-specific flags.")
}
