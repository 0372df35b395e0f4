package memory

import (
	"encoding/json"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hivelight/hive-go-sdk/core"
)

// MaxFactLength caps a single fact's content, in characters.
const MaxFactLength = 1000

// DefaultTokenBudget is the document-wide serialized size budget.
const DefaultTokenBudget = 2000

// Fact is one remembered statement about the user.
type Fact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SourceRef string    `json:"source_ref,omitempty"`
	Active    bool      `json:"active"`
}

// Document is one user's fact store. Facts are kept in creation order.
type Document struct {
	UserID string `json:"user_id"`
	Facts  []Fact `json:"facts"`
}

// NewDocument creates an empty document for the user.
func NewDocument(userID string) *Document {
	return &Document{UserID: userID}
}

// AddFact appends a new active fact and returns its generated id.
func (d *Document) AddFact(content, sourceRef string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &core.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(content) > MaxFactLength {
		return "", &core.ValidationError{Field: "content", Reason: "exceeds maximum length"}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	d.Facts = append(d.Facts, Fact{
		ID:        id,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		SourceRef: sourceRef,
		Active:    true,
	})
	return id, nil
}

// DeactivateFact marks a fact inactive. Deactivating an already-inactive
// fact returns true without changing anything; an unknown id returns
// false.
func (d *Document) DeactivateFact(id string) bool {
	for i := range d.Facts {
		if d.Facts[i].ID == id {
			d.Facts[i].Active = false
			return true
		}
	}
	return false
}

// ActiveCount returns the number of active facts.
func (d *Document) ActiveCount() int {
	n := 0
	for _, f := range d.Facts {
		if f.Active {
			n++
		}
	}
	return n
}

// TotalCount returns the number of facts, active or not.
func (d *Document) TotalCount() int {
	return len(d.Facts)
}

// ActiveFacts returns the active facts in creation order.
func (d *Document) ActiveFacts() []Fact {
	out := make([]Fact, 0, len(d.Facts))
	for _, f := range d.Facts {
		if f.Active {
			out = append(out, f)
		}
	}
	return out
}

// TokenSize estimates the serialized size of the document in tokens.
// Uses the common chars/4 heuristic; close enough for budget decisions.
func (d *Document) TokenSize() int {
	b, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return len(b) / 4
}

// EnforceBudget evicts facts until the serialized size fits the budget:
// inactive facts first, then active facts, oldest first within each
// group. Facts are loaded wholesale rather than accessed individually,
// so recency of creation stands in for recency of use. Returns the
// number of facts evicted.
func (d *Document) EnforceBudget(maxTokens int) int {
	evicted := 0
	for d.TokenSize() > maxTokens {
		i := d.victim()
		if i < 0 {
			break
		}
		d.Facts = append(d.Facts[:i], d.Facts[i+1:]...)
		evicted++
	}
	return evicted
}

// victim picks the next fact to evict: the oldest inactive fact, or the
// oldest active fact when no inactive ones remain. Facts are in
// creation order, so the first match is the oldest.
func (d *Document) victim() int {
	for i := range d.Facts {
		if !d.Facts[i].Active {
			return i
		}
	}
	if len(d.Facts) > 0 {
		return 0
	}
	return -1
}
