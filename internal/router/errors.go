package router

import "errors"

var (
	ErrSchemaCompile = errors.New("envelope schema failed to compile")
)
