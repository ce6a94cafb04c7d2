package docstore

import "errors"

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotBound         = errors.New("collection is not bound")
	ErrSaveVetoed       = errors.New("save vetoed by model")
	ErrIteratorDone     = errors.New("no more items in iterator")
)
