package domain

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// NewID returns a fresh interview identifier (a 24-hex ObjectId).
func NewID() string { return primitive.NewObjectID().Hex() }

// IsObjectID reports whether s is a well-formed 24-hex identifier.
func IsObjectID(s string) bool { return objectIDPattern.MatchString(s) }
