package models

import "github.com/google/uuid"

// newID returns a time-ordered UUID string for primary keys.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func assignID(id *string) {
	if *id == "" {
		*id = newID()
	}
}
