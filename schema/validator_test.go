package payloadschema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidateCommentPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"subject_id": 12,
		"content": "חוק הגיוס חייב לעבור",
		"source_url": "https://www.knesset.gov.il/protocol/1",
		"source_platform": "knesset",
		"source_type": "Primary",
		"source_name": "Plenum protocol",
		"source_credibility": 9,
		"keywords": ["חוק הגיוס"],
		"comment_date": "2026-03-01T09:30:00+02:00"
	}`)

	item, err := ValidateCommentPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	if item.SubjectID != 12 {
		t.Fatalf("expected subject_id=12, got %d", item.SubjectID)
	}
	if item.SourceCredibility == nil || *item.SourceCredibility != 9 {
		t.Fatalf("expected source_credibility=9, got %v", item.SourceCredibility)
	}
	want := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	if got := item.ParsedCommentDate(); !got.Equal(want) {
		t.Fatalf("expected comment date %s, got %s", want, got)
	}
}

func TestValidateCommentPayload_MinimalLeavesOptionalUnset(t *testing.T) {
	item, err := ValidateCommentPayload(json.RawMessage(`{"subject_id":1,"content":"quote","source_type":"Secondary"}`))
	if err != nil {
		t.Fatalf("expected minimal payload to be valid, got error: %v", err)
	}
	if item.Keywords != nil || item.SourceCredibility != nil {
		t.Fatalf("expected omitted optional fields to stay nil")
	}
	if !item.ParsedCommentDate().IsZero() {
		t.Fatalf("expected zero comment date when omitted")
	}
}

func TestValidateCommentPayload_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing subject":     `{"content":"x","source_type":"Primary"}`,
		"bad source type":     `{"subject_id":1,"content":"x","source_type":"Tertiary"}`,
		"credibility range":   `{"subject_id":1,"content":"x","source_type":"Primary","source_credibility":11}`,
		"unknown property":    `{"subject_id":1,"content":"x","source_type":"Primary","mk_id":3}`,
		"fractional subject":  `{"subject_id":1.5,"content":"x","source_type":"Primary"}`,
		"non-rfc3339 date":    `{"subject_id":1,"content":"x","source_type":"Primary","comment_date":"yesterday"}`,
		"whitespace content":  `{"subject_id":1,"content":"   ","source_type":"Primary"}`,
		"relative source url": `{"subject_id":1,"content":"x","source_type":"Primary","source_url":"/news/1"}`,
		"trailing content":    `{"subject_id":1,"content":"x","source_type":"Primary"} {}`,
	}

	for name, raw := range cases {
		_, err := ValidateCommentPayload(json.RawMessage(raw))
		if err == nil {
			t.Fatalf("%s: expected validation to fail", name)
		}
		var payloadErr *PayloadError
		if !errors.As(err, &payloadErr) {
			t.Fatalf("%s: expected *PayloadError, got %T: %v", name, err, err)
		}
		if len(payloadErr.Fields) == 0 {
			t.Fatalf("%s: expected field errors", name)
		}
	}
}

func TestValidateCommentPayload_FieldNames(t *testing.T) {
	_, err := ValidateCommentPayload(json.RawMessage(`{"subject_id":1,"content":"x","source_type":"Primary","source_credibility":0}`))
	var payloadErr *PayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected *PayloadError, got %v", err)
	}
	if _, ok := payloadErr.Fields["source_credibility"]; !ok {
		t.Fatalf("expected source_credibility field error, got %v", payloadErr.Fields)
	}
}
