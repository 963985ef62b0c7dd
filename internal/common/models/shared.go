package models

import (
	"context"
	"slices"
	"time"
)

type ContextKey string

const (
	CallerKey ContextKey = "routing_caller"
)

// Change records one field difference between the stored and the incoming version of a record.
type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

// Caller is the identity every engine call runs as. At pins the clock for the call;
// the zero value means wall-clock time.
type Caller struct {
	UserID string    `json:"user_id"`
	Roles  []string  `json:"roles"`
	At     time.Time `json:"-"`
}

// SystemCaller is used by background jobs.
var SystemCaller = Caller{UserID: "system"}

// Now returns the pinned time or the current time.
func (c Caller) Now() time.Time {
	if !c.At.IsZero() {
		return c.At
	}
	return time.Now()
}

func (c Caller) HasRole(role string) bool {
	return role != "" && slices.Contains(c.Roles, role)
}

func (c Caller) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// WithCaller returns a context carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, CallerKey, c)
}

// CallerFrom extracts the caller. ok is false when none was attached.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(CallerKey).(Caller)
	return c, ok
}

// MustCaller returns the attached caller or SystemCaller.
func MustCaller(ctx context.Context) Caller {
	if c, ok := CallerFrom(ctx); ok {
		return c
	}
	return SystemCaller
}
