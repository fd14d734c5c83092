package domain

import "errors"

var (
	ErrPoolFull           = errors.New("connection pool is full")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidSubjectID   = errors.New("invalid subject identifier")
	ErrInvalidOwnerID     = errors.New("invalid owner identifier")
)
