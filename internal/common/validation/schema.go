package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// ValidationError lists every violation found in one document.
type ValidationError struct {
	Schema string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Errors, "; "))
}

// MustCompile compiles a schema literal and panics on a malformed schema.
func MustCompile(name, source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("validation: compile %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Validate checks a raw JSON document.
func (s *Schema) Validate(raw []byte) error {
	return s.validate(gojsonschema.NewBytesLoader(raw))
}

// ValidateValue checks an in-memory Go value.
func (s *Schema) ValidateValue(v interface{}) error {
	return s.validate(gojsonschema.NewGoLoader(v))
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) error {
	result, err := s.schema.Validate(doc)
	if err != nil {
		return &ValidationError{Schema: s.name, Errors: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return &ValidationError{Schema: s.name, Errors: errs}
}

// MaxTagLength is the longest accepted tag, in characters.
const MaxTagLength = 128

// TagArray is the shape of the interests, categories and tags columns.
// Members are checked one by one with ValidTag.
var TagArray = MustCompile("tag_array", `{"type": "array"}`)

// ValidTag reports whether v is a string member TagSet accepts.
func ValidTag(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= MaxTagLength
}

// GeoPoint is the shape of a location column.
var GeoPoint = MustCompile("geo_point", `{
	"type": "object",
	"required": ["lat", "lon"],
	"properties": {
		"lat": {"type": "number", "minimum": -90, "maximum": 90},
		"lon": {"type": "number", "minimum": -180, "maximum": 180},
		"area": {"type": "string"}
	}
}`)

// InteractionRequest is the body of POST /interaction.
var InteractionRequest = MustCompile("interaction_request", `{
	"type": "object",
	"required": ["user_id", "business_id", "interaction_type"],
	"properties": {
		"user_id": {"type": "integer", "minimum": 1},
		"business_id": {"type": "integer", "minimum": 1},
		"interaction_type": {"type": "string"},
		"weight": {"type": "number", "minimum": 0}
	}
}`)

// SyncUserRequest is the body of POST /sync/user.
var SyncUserRequest = MustCompile("sync_user_request", `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"username": {"type": "string"},
		"email": {"type": "string"},
		"interests": {"type": "array", "items": {"type": "string", "maxLength": 128}},
		"location": {"type": ["object", "null"]}
	}
}`)

// SyncBusinessRequest is the body of POST /sync/business.
var SyncBusinessRequest = MustCompile("sync_business_request", `{
	"type": "object",
	"required": ["id", "name"],
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": ["string", "null"]},
		"categories": {"type": "array", "items": {"type": "string", "maxLength": 128}},
		"tags": {"type": "array", "items": {"type": "string", "maxLength": 128}},
		"location": {"type": ["object", "null"]},
		"popularity_score": {"type": "number", "minimum": 0},
		"rating": {"type": "number", "minimum": 0},
		"rating_count": {"type": "integer", "minimum": 0}
	}
}`)
