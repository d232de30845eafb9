package model

import "time"

// Source-side status values. osTicket tasks are either open or closed.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// SourceEntity is an osTicket task as seen by the bridge, joined with the
// ticket it belongs to.
type SourceEntity struct {
	ID             int64     `json:"id"`
	Number         string    `json:"number"`
	TicketID       int64     `json:"ticket_id,omitempty"`
	TicketNumber   string    `json:"ticket_number,omitempty"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	TicketStatus   string    `json:"ticket_status,omitempty"`
	CategoryID     int64     `json:"category_id,omitempty"`
	CategoryName   string    `json:"category_name,omitempty"`
	RequesterName  string    `json:"requester_name,omitempty"`
	RequesterEmail string    `json:"requester_email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Category is an osTicket help topic.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TargetTask is a Kanboard task.
type TargetTask struct {
	ID          int64  `json:"id"`
	ContainerID int64  `json:"project_id"`
	ColumnID    int64  `json:"column_id"`
	Title       string `json:"title"`
}

// Column is a Kanboard board column.
type Column struct {
	ID   int64  `json:"id"`
	Name string `json:"title"`
}

// Container is a Kanboard project.
type Container struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NoteKind selects which osTicket thread a note is posted to.
type NoteKind string

const (
	NoteTask   NoteKind = "task"
	NoteTicket NoteKind = "ticket"
)

// NoteTarget addresses a note to a task or to the ticket a task belongs to.
type NoteTarget struct {
	Kind NoteKind `json:"kind"`
	ID   int64    `json:"id"`
}
