package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed comment.schema.json
var commentSchemaJSON string

// CommentPayload is the create-comment request body.
type CommentPayload struct {
	SubjectID         int64    `json:"subject_id"`
	Content           string   `json:"content"`
	SourceURL         string   `json:"source_url,omitempty"`
	SourcePlatform    string   `json:"source_platform,omitempty"`
	SourceType        string   `json:"source_type"`
	SourceName        *string  `json:"source_name,omitempty"`
	SourceCredibility *int     `json:"source_credibility,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	CommentDate       string   `json:"comment_date,omitempty"`
}

// ParsedCommentDate returns the RFC3339 comment_date, or the zero time when
// it was omitted.
func (p *CommentPayload) ParsedCommentDate() time.Time {
	if p == nil || strings.TrimSpace(p.CommentDate) == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(p.CommentDate))
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// PayloadError lists the offending fields of a rejected payload.
type PayloadError struct {
	Fields map[string]string
}

func (e *PayloadError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "invalid comment payload: " + strings.Join(parts, "; ")
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateCommentPayload decodes payload strictly, checks it against the
// embedded schema and a few semantic rules, and returns the typed payload.
// Rejections are *PayloadError.
func ValidateCommentPayload(payload json.RawMessage) (*CommentPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, &PayloadError{Fields: map[string]string{"payload": err.Error()}}
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return nil, &PayloadError{Fields: schemaFieldErrors(validationErr)}
		}
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item CommentPayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if fields := validateSemantics(&item); len(fields) > 0 {
		return nil, &PayloadError{Fields: fields}
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("comment.schema.json", strings.NewReader(commentSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("comment.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func schemaFieldErrors(err *jsonschema.ValidationError) map[string]string {
	fields := map[string]string{}
	for _, entry := range err.BasicOutput().Errors {
		if entry.Error == "" || strings.HasPrefix(entry.Error, "doesn't validate with") {
			continue
		}
		field := strings.TrimPrefix(entry.InstanceLocation, "/")
		if field == "" {
			field = "payload"
		}
		if _, exists := fields[field]; !exists {
			fields[field] = entry.Error
		}
	}
	if len(fields) == 0 {
		fields["payload"] = err.Error()
	}
	return fields
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *CommentPayload) map[string]string {
	fields := map[string]string{}

	if strings.TrimSpace(item.Content) == "" {
		fields["content"] = "must not be empty"
	}
	if raw := strings.TrimSpace(item.SourceURL); raw != "" {
		if parsed, err := url.ParseRequestURI(raw); err != nil || parsed.Host == "" {
			fields["source_url"] = "must be an absolute URL"
		}
	}
	if raw := strings.TrimSpace(item.CommentDate); raw != "" {
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			fields["comment_date"] = "must be RFC3339"
		}
	}
	for i, keyword := range item.Keywords {
		if strings.TrimSpace(keyword) == "" {
			fields[fmt.Sprintf("keywords/%d", i)] = "must not be blank"
		}
	}
	return fields
}
