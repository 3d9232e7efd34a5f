package models

import (
	"strings"
	"time"
)

// Base carries the identity and timestamps every stored record shares.
type Base struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) DocumentID() uint { return b.ID }
func (b *Base) AssignID(id uint) { b.ID = id }
func (b *Base) CreatedTime() time.Time { return b.CreatedAt }
func (b *Base) SetCreatedAt(t time.Time) { b.CreatedAt = t }
func (b *Base) SetUpdatedAt(t time.Time) { b.UpdatedAt = t }

// UserRef is the subset of a user embedded into populated records.
type UserRef struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// NormalizeKey lowercases plant and disease names so lookups are
// case-insensitive.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneIDs(ids []uint) []uint {
	if ids == nil {
		return nil
	}
	out := make([]uint, len(ids))
	copy(out, ids)
	return out
}

func cloneRef(r *UserRef) *UserRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
