// Package api contains types for the API requests and responses.
package api

// TextPostRequest is the payload for creating a text-only post, published
// immediately without going through the extraction pipeline.
type TextPostRequest struct {
	UserName string `json:"username"`
	Content  string `json:"content"`
}

// PublishRequest is the payload for edit-and-publish: rewrite the content of
// a staged post and move it to done.
type PublishRequest struct {
	PostID  string `json:"postid"`
	Content string `json:"content"`
}

// CreatedResponse acknowledges a newly created post.
type CreatedResponse struct {
	Message string `json:"message"`
	PostID  string `json:"postId"`
}

// PendingPost is one entry in the owner's needs-review list.
type PendingPost struct {
	PostID  string `json:"postId"`
	Stage   string `json:"stage"`
	Content string `json:"content"`
}

// DonePost is one entry in the published feed.
type DonePost struct {
	PostID   string `json:"postId"`
	UserName string `json:"username"`
	Content  string `json:"content"`
	PostDate string `json:"postDate"`
}
