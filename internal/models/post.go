// Package models defines the data models used in the application.
package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Stage is the lifecycle tag of a post record.
type Stage string

// Possible values for Stage.
const (
	StageStaging Stage = "staging"
	StageError   Stage = "error"
	StageDone    Stage = "done"
)

// Valid reports whether s is one of the known lifecycle stages.
func (s Stage) Valid() bool {
	switch s {
	case StageStaging, StageError, StageDone:
		return true
	}
	return false
}

// CanTransition reports whether a post may move from one stage to another.
// The only allowed transition is staging/error -> done; the pipeline creates
// records in staging or error and never touches them again.
func CanTransition(from, to Stage) bool {
	if to != StageDone {
		return false
	}
	return from == StageStaging || from == StageError
}

// Post represents a user post, either extracted from an uploaded image or
// written directly as text.
type Post struct {
	PostID   string `dynamodbav:"PostID" json:"postId"`
	UserName string `dynamodbav:"UserName" json:"username"`
	Content  string `dynamodbav:"Content" json:"content"`
	Staging  Stage  `dynamodbav:"Staging" json:"stage"`
	PostDate string `dynamodbav:"PostDate" json:"postDate"`
}

// NewPostID generates a collision-resistant post identifier.
func NewPostID() string { return ulid.Make().String() }

// DateUTC formats t as the calendar date used in PostDate.
func DateUTC(t time.Time) string { return t.UTC().Format("2006-01-02") }
