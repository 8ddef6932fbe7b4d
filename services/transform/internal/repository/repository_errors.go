package repository

import "errors"

var ErrEmptyFileKey = errors.New("empty file key")
