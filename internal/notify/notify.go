// Package notify fans attendance events out to live viewers.
//
// Publishers and websocket subscribers agree on channel names only through
// the Group constructors below.
package notify

import (
	"context"
	"encoding/json"
)

// Group names a set of live viewers.
type Group string

// StudentGroup is the private channel of one student.
func StudentGroup(studentID string) Group { return Group("student_" + studentID) }

// LectureGroup is the live attendance channel of one lecture.
func LectureGroup(lectureID string) Group { return Group("attendance_" + lectureID) }

const (
	TypeAttendanceUpdate = "attendance.update"
	TypeAttendanceStatus = "attendance.status"
)

// Event is what subscribers receive.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent encodes payload as the event data.
func NewEvent(typ string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: data}, nil
}

// Publisher delivers an event to every current subscriber of a group.
// Delivery is at-most-once; there is no acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, group Group, evt Event) error
}

// Relay is a Publisher that can also be subscribed to.
type Relay interface {
	Publisher
	// Subscribe returns a channel of events and a function that ends the subscription.
	Subscribe(ctx context.Context, group Group) (<-chan Event, func(), error)
}
