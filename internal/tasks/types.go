package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
)

var ErrInvalidTask = errors.New("invalid task")

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

type Reward struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	ImageURL    *string `json:"image_url,omitempty"`
	LinkURL     *string `json:"link_url,omitempty"`
	Cost        int     `json:"cost"`
	IsActive    bool    `json:"is_active"`
}

type Task struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	Rewards       []Reward   `json:"rewards"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type TaskCreate struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Priority      Priority   `json:"priority,omitempty"`
	Rewards       []Reward   `json:"rewards,omitempty"`
}

// Normalize trims the title and applies the default priority.
func (c *TaskCreate) Normalize() {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
}

func (c TaskCreate) Validate() error {
	err := criterio.ValidateStruct(
		criterio.Run("title", c.Title, required),
		criterio.Run("priority", string(c.Priority), validPriority),
		validateRewards("rewards", c.Rewards),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

// TaskUpdate carries only the fields a client sent; nil means unchanged.
type TaskUpdate struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Priority      *Priority  `json:"priority,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	Rewards       *[]Reward  `json:"rewards,omitempty"`
}

func (u TaskUpdate) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		errs = errs.Append("title", errors.New("must not be empty"))
	}
	if u.Priority != nil && !u.Priority.valid() {
		errs = errs.Append("priority", fmt.Errorf("unknown priority %q", *u.Priority))
	}
	if u.Status != nil && !u.Status.valid() {
		errs = errs.Append("status", fmt.Errorf("unknown status %q", *u.Status))
	}

	var rewards []Reward
	if u.Rewards != nil {
		rewards = *u.Rewards
	}

	err := criterio.ValidateStruct(errs.ToError(), validateRewards("rewards", rewards))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.DueDate == nil &&
		u.ScheduledTime == nil && u.Priority == nil && u.Status == nil && u.Rewards == nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("is required")
	}
	return nil
}

func validPriority(s string) error {
	if !Priority(s).valid() {
		return fmt.Errorf("unknown priority %q", s)
	}
	return nil
}

func validateRewards(field string, rewards []Reward) error {
	var errs criterio.FieldErrorsBuilder
	for i, r := range rewards {
		if r.Cost < 0 {
			errs = errs.Append(fmt.Sprintf("%s[%d].cost", field, i), fmt.Errorf("must not be negative, got %d", r.Cost))
		}
		if strings.TrimSpace(r.Description) == "" {
			errs = errs.Append(fmt.Sprintf("%s[%d].description", field, i), errors.New("is required"))
		}
	}
	return errs.ToError()
}
