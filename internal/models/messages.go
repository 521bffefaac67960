package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Flag is a boolean that also accepts the "True"/"False" strings some
// producers put on the wire. It always marshals back as a real boolean.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*f = Flag(t)
	case string:
		switch strings.ToLower(t) {
		case "true":
			*f = true
		case "false":
			*f = false
		default:
			return fmt.Errorf("invalid flag value %q", t)
		}
	default:
		return fmt.Errorf("invalid flag type %T", v)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(bool(f)) }

// ExtractionResult is the result-queue message produced by the text
// extraction stage and consumed by the persistence stage.
type ExtractionResult struct {
	UserName string `json:"username"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Text     string `json:"text"`
	IsError  Flag   `json:"isError"`
}

// ObjectRef identifies a stored object.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ErrEmptyNotification is returned when a notification body carries no
// object references.
var ErrEmptyNotification = errors.New("notification carries no object records")

// s3Entity mirrors the bucket/object fragment of an S3 event notification.
type s3Entity struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// uploadNotification accepts both shapes seen on the upload queue: the
// enveloped S3 event ({Records:[{s3:{...}}]}) and a bare bucket/object pair.
type uploadNotification struct {
	Records []struct {
		S3 s3Entity `json:"s3"`
	} `json:"Records"`
	s3Entity
}

// ParseUploadNotification normalizes an upload-queue message body into a flat
// list of object references, unwrapping the S3 event envelope when present.
// Keys arrive URL-encoded with '+' for spaces and are decoded here.
func ParseUploadNotification(body []byte) ([]ObjectRef, error) {
	var n uploadNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}

	entities := make([]s3Entity, 0, len(n.Records)+1)
	for _, r := range n.Records {
		entities = append(entities, r.S3)
	}
	if len(entities) == 0 {
		entities = append(entities, n.s3Entity)
	}

	refs := make([]ObjectRef, 0, len(entities))
	for _, e := range entities {
		if e.Bucket.Name == "" || e.Object.Key == "" {
			continue
		}
		key, err := decodeKey(e.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", e.Object.Key, err)
		}
		refs = append(refs, ObjectRef{Bucket: e.Bucket.Name, Key: key})
	}
	if len(refs) == 0 {
		return nil, ErrEmptyNotification
	}
	return refs, nil
}

func decodeKey(key string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(key, "+", " "))
}
