package types

// Error is a comparable error value carrying a stable code, usable with errors.Is.
type Error struct {
	Code    int16
	Message string
}

func (e Error) Error() string {
	return e.Message
}

// Errors surfaced by admin, producer and consumer operations.
var (
	ErrAlreadyExists        = Error{Code: 1, Message: "topic already exists"}
	ErrNotFound             = Error{Code: 2, Message: "not found"}
	ErrOffsetOutOfRange     = Error{Code: 3, Message: "offset out of range"}
	ErrMalformedRecord      = Error{Code: 4, Message: "malformed record"}
	ErrStorageWriteFailed   = Error{Code: 5, Message: "storage write failed"}
	ErrStorageReadFailed    = Error{Code: 6, Message: "storage read failed"}
	ErrUnsupportedOperation = Error{Code: 7, Message: "unsupported operation"}
	ErrInvalidConfig        = Error{Code: 8, Message: "invalid configuration"}
	ErrInvalidPartitions    = Error{Code: 9, Message: "number of partitions is below 1"}
	ErrInvalidTopic         = Error{Code: 10, Message: "invalid topic name"}
	ErrClosed               = Error{Code: 11, Message: "handle is closed"}
)
