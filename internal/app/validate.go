package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	payloadschema "horse.fit/mkquotes/schema"
)

type validateFailure struct {
	Path   string            `json:"path"`
	Reason string            `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type validateResult struct {
	Scanned  int               `json:"scanned"`
	Valid    int               `json:"valid"`
	Invalid  int               `json:"invalid"`
	Failures []validateFailure `json:"failures,omitempty"`
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/comments", "Directory containing .json comment payload files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
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

	root := strings.TrimSpace(*dir)
	files, err := collectJSONFiles(root, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	result := validateFiles(files)

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		for _, failure := range result.Failures {
			fmt.Fprintf(os.Stderr, "INVALID %s: %s\n", failure.Path, failure.describe())
		}
		fmt.Printf(
			"validate scanned=%d valid=%d invalid=%d dir=%s recursive=%t\n",
			result.Scanned,
			result.Valid,
			result.Invalid,
			root,
			*recursive,
		)
	}

	if result.Scanned == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no .json files found under %s\n", root)
		return 1
	}
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func validateFiles(files []string) validateResult {
	result := validateResult{}
	for _, path := range files {
		result.Scanned++

		raw, err := os.ReadFile(path)
		if err != nil {
			result.fail(validateFailure{Path: path, Reason: "read failed: " + err.Error()})
			continue
		}

		if !json.Valid(raw) {
			result.fail(validateFailure{Path: path, Reason: "malformed JSON"})
			continue
		}

		if _, err := payloadschema.ValidateCommentPayload(json.RawMessage(raw)); err != nil {
			var payloadErr *payloadschema.PayloadError
			if errors.As(err, &payloadErr) {
				result.fail(validateFailure{Path: path, Fields: payloadErr.Fields})
			} else {
				result.fail(validateFailure{Path: path, Reason: err.Error()})
			}
			continue
		}

		result.Valid++
	}
	return result
}

func (r *validateResult) fail(failure validateFailure) {
	r.Invalid++
	r.Failures = append(r.Failures, failure)
}

func (f validateFailure) describe() string {
	if len(f.Fields) == 0 {
		return f.Reason
	}
	keys := make([]string, 0, len(f.Fields))
	for key := range f.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+f.Fields[key])
	}
	return strings.Join(parts, "; ")
}

func collectJSONFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if strings.EqualFold(filepath.Ext(name), ".json") {
				files = append(files, filepath.Join(cleanRoot, name))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}
