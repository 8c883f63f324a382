package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrNotFound is returned when a lookup by key, id or sequence number
	// matches no row.
	ErrNotFound = errors.New("record was not found")

	// ErrStaleVersion is returned by conditional writes (outbox Ack, item
	// MarkRemote) when the stored row has moved past the version the caller
	// observed. It is informational: the newer row simply wins.
	ErrStaleVersion = errors.New("stored version is newer")

	// ErrBlobNotFound is returned by file storages when no blob is stored
	// under the requested content hash.
	ErrBlobNotFound = errors.New("blob was not found")

	// ErrRemoteFilesDisabled is returned when blob transfer is requested but
	// no remote store is configured.
	ErrRemoteFilesDisabled = errors.New("remote file storage is not configured")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain logic
// can be applied.
var (
	// ErrBuildingSQLQuery is returned when squirrel fails to render a query.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the driver cannot start a
	// transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open transaction
	// fails. The transaction is considered rolled back at this point.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when an INSERT, UPDATE or DELETE fails.
	ErrExecutingStatement = errors.New("failed to executing statement")

	// ErrScanningRow is returned when scanning a result row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrEncodingValue is returned when a value cannot be JSON encoded for
	// storage or decoded on read.
	ErrEncodingValue = errors.New("failed to encode stored value")
)
