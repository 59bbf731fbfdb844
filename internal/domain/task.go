package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the maximum number of runes kept in a derived title.
const MaxTitleLength = 80

var (
	hashtagRegex    = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	dependencyRegex = regexp.MustCompile(`(?i)depends on ([a-z]+-\d+)`)
	subtaskRegex    = regexp.MustCompile(`^\s*(?:[-*]|\[ \])\s+(.+)$`)
)

// Duplicate records a later request that looked like a repeat of a task.
type Duplicate struct {
	RequestID  string    `json:"requestId"`
	Similarity float64   `json:"similarity"`
	AddedAt    time.Time `json:"addedAt"`
}

// TaskRecord is the unit persisted by the record store. Every mutation of a
// record is written as a whole new serialization; records are never patched
// in place.
type TaskRecord struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Category       string      `json:"category"`
	Priority       Priority    `json:"priority"`
	Status         TaskStatus  `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	Tags           []string    `json:"tags"`
	Subtasks       []string    `json:"subtasks"`
	Dependencies   []string    `json:"dependencies"`
	Duplicates     []Duplicate `json:"duplicates"`
	ProcessingTime int64       `json:"processingTime,omitempty"`
	Result         string      `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// NewTaskRecord builds a pending task from raw request content. The title is
// the first non-blank line, hashtags become tags, bullet lines become
// subtasks and "depends on <id>" phrases become dependencies.
func NewTaskRecord(id, content string, priority Priority, category string, now time.Time) (*TaskRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	record := &TaskRecord{
		ID:           id,
		Title:        deriveTitle(content),
		Description:  content,
		Category:     category,
		Priority:     priority,
		Status:       TaskStatusPending,
		CreatedAt:    now.UTC(),
		Tags:         extractTags(content),
		Subtasks:     extractSubtasks(content),
		Dependencies: extractDependencies(content),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate checks that the record carries an id, a known status and a known
// priority.
func (r *TaskRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptyTaskID
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, r.Priority)
	}
	return nil
}

// Start moves a pending task to in_progress.
func (r *TaskRecord) Start(now time.Time) error {
	if err := r.transition(TaskStatusInProgress); err != nil {
		return err
	}
	started := now.UTC()
	r.StartedAt = &started
	return nil
}

// Complete marks the task completed and records how long processing took.
func (r *TaskRecord) Complete(now time.Time, result string) error {
	if err := r.transition(TaskStatusCompleted); err != nil {
		return err
	}
	r.finish(now)
	r.Result = result
	return nil
}

// Fail marks the task as errored with the given message.
func (r *TaskRecord) Fail(now time.Time, message string) error {
	if err := r.transition(TaskStatusError); err != nil {
		return err
	}
	r.finish(now)
	r.Error = message
	return nil
}

// AddDuplicate notes that requestID looked like a repeat of this task.
func (r *TaskRecord) AddDuplicate(requestID string, similarity float64, now time.Time) {
	r.Duplicates = append(r.Duplicates, Duplicate{
		RequestID:  requestID,
		Similarity: similarity,
		AddedAt:    now.UTC(),
	})
}

// Clone returns a deep copy of the record.
func (r *TaskRecord) Clone() *TaskRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	c.Tags = slices.Clone(r.Tags)
	c.Subtasks = slices.Clone(r.Subtasks)
	c.Dependencies = slices.Clone(r.Dependencies)
	c.Duplicates = slices.Clone(r.Duplicates)
	return &c
}

func (r *TaskRecord) transition(to TaskStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *TaskRecord) finish(now time.Time) {
	completed := now.UTC()
	r.CompletedAt = &completed
	if r.StartedAt != nil {
		r.ProcessingTime = completed.Sub(*r.StartedAt).Milliseconds()
		if r.ProcessingTime < 0 {
			r.ProcessingTime = 0
		}
	}
}

func deriveTitle(content string) string {
	title := content
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			title = trimmed
			break
		}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:MaxTitleLength-1])) + "…"
	}
	return title
}

func extractTags(content string) []string {
	matches := hashtagRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

func extractSubtasks(content string) []string {
	var subtasks []string
	for _, line := range strings.Split(content, "\n") {
		if m := subtaskRegex.FindStringSubmatch(line); m != nil {
			subtasks = append(subtasks, strings.TrimSpace(m[1]))
		}
	}
	return subtasks
}

func extractDependencies(content string) []string {
	matches := dependencyRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	deps := make([]string, 0, len(matches))
	for _, m := range matches {
		deps = append(deps, strings.ToLower(m[1]))
	}
	slices.Sort(deps)
	return slices.Compact(deps)
}
