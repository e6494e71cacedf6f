package db

import "fmt"

var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidData   = fmt.Errorf("invalid data provided")
	ErrAlreadyExists = fmt.Errorf("already exists")
)

// ErrInUse is returned when deleting a record other records still point to.
var ErrInUse = fmt.Errorf("record in use")
