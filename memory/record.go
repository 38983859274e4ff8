package memory

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Type classifies a record. The set is open: callers may use any
// non-empty value, the constants below are the ones the scorer knows.
type Type string

const (
	TypeConversation  Type = "conversation"
	TypeFact          Type = "fact"
	TypePreference    Type = "preference"
	TypeTask          Type = "task"
	TypeImportantInfo Type = "important_info"
	TypeOther         Type = "other"
)

// Record is one stored memory.
type Record struct {
	ID         string
	Content    string
	Type       Type
	Importance float64

	CreatedAt     time.Time
	UpdatedAt     time.Time // zero until the first update
	ContentLength int       // rune count of Content

	// Extra is caller-supplied metadata. It never shadows the fields above.
	Extra map[string]string

	Embedding []float32
}

// NewRecord creates a record with a fresh ID and system metadata filled in.
// The caller sets the embedding.
func NewRecord(content string, typ Type, importance float64, extra map[string]string) *Record {
	if typ == "" {
		typ = TypeConversation
	}
	return &Record{
		ID:            uuid.New().String(),
		Content:       content,
		Type:          typ,
		Importance:    importance,
		CreatedAt:     time.Now().UTC(),
		ContentLength: utf8.RuneCountInString(content),
		Extra:         copyExtra(extra),
	}
}

// System metadata keys used on the wire and by stores that keep string maps.
const (
	KeyType          = "type"
	KeyTimestamp     = "timestamp"
	KeyContentLength = "content_length"
	KeyImportance    = "importance_score"
	KeyLastUpdated   = "last_updated"

	// extraPrefix namespaces caller keys in flat string maps so they can
	// never collide with system keys.
	extraPrefix = "ext:"
)

// Metadata flattens the record into the map exposed by export and the HTTP
// API. System keys win over Extra keys of the same name.
func (r *Record) Metadata() map[string]any {
	md := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		md[k] = v
	}
	md[KeyType] = string(r.Type)
	md[KeyTimestamp] = r.CreatedAt.Format(time.RFC3339)
	md[KeyContentLength] = r.ContentLength
	md[KeyImportance] = r.Importance
	if !r.UpdatedAt.IsZero() {
		md[KeyLastUpdated] = r.UpdatedAt.Format(time.RFC3339)
	}
	return md
}

// EncodeMetadata serializes system fields and Extra into a flat string map.
func EncodeMetadata(r *Record) map[string]string {
	md := make(map[string]string, len(r.Extra)+5)
	for k, v := range r.Extra {
		md[extraPrefix+k] = v
	}
	md[KeyType] = string(r.Type)
	md[KeyTimestamp] = r.CreatedAt.Format(time.RFC3339Nano)
	md[KeyContentLength] = strconv.Itoa(r.ContentLength)
	md[KeyImportance] = strconv.FormatFloat(r.Importance, 'f', -1, 64)
	if !r.UpdatedAt.IsZero() {
		md[KeyLastUpdated] = r.UpdatedAt.Format(time.RFC3339Nano)
	}
	return md
}

// ExtraKey returns the flat-map key under which EncodeMetadata stores a
// caller key.
func ExtraKey(k string) string {
	return extraPrefix + k
}

// DecodeMetadata rebuilds a record from EncodeMetadata output.
func DecodeMetadata(id, content string, embedding []float32, md map[string]string) (*Record, error) {
	rec := &Record{
		ID:        id,
		Content:   content,
		Type:      Type(md[KeyType]),
		Embedding: embedding,
	}
	var err error
	// Records written without a score rank as neutral.
	rec.Importance = defaultBaseImportance
	if v := md[KeyImportance]; v != "" {
		if rec.Importance, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyImportance, err)
		}
	}
	if v := md[KeyContentLength]; v != "" {
		if rec.ContentLength, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyContentLength, err)
		}
	} else {
		rec.ContentLength = utf8.RuneCountInString(content)
	}
	if v := md[KeyTimestamp]; v != "" {
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyTimestamp, err)
		}
	}
	if v := md[KeyLastUpdated]; v != "" {
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyLastUpdated, err)
		}
	}
	for k, v := range md {
		if name, ok := strings.CutPrefix(k, extraPrefix); ok {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[name] = v
		}
	}
	return rec, nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Extra = copyExtra(r.Extra)
	if r.Embedding != nil {
		c.Embedding = append([]float32(nil), r.Embedding...)
	}
	return &c
}

func copyExtra(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
