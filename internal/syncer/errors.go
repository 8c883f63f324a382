package syncer

import "errors"

var (
	ErrSyncAborted   = errors.New("sync aborted")
	ErrBlobIntegrity = errors.New("downloaded blob does not match its hash")
	ErrTypeMismatch  = errors.New("remote item type differs from local item")
	ErrCursorPersist = errors.New("error saving sync cursors")
	ErrBlobUpload    = errors.New("error uploading attachment blob")
)
