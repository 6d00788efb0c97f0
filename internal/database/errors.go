package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
	ErrInvalidExam   = errors.New("exam metadata requires an exam_id")
)
