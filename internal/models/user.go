package models

import "time"

type User struct {
	UserID  string    `json:"user_id"`
	Name    string    `json:"name"`
	Login   string    `json:"login,omitempty"`
	Role    string    `json:"role"`
	Created time.Time `json:"created_at"`
}

const RoleExecutor = "executor"

type Note struct {
	NoteID     string    `json:"note_id"`
	ItemID     string    `json:"item_id"`
	UserID     string    `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
