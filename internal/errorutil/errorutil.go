package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues, such as a broken call/exit pairing in
// the trace.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrTraceFormat indicates the trace source does not start with the expected
// structural header.
var ErrTraceFormat = errors.New("unsupported trace format")

// ErrDumpFormat indicates the dump source is not an objdump-style
// disassembly listing.
var ErrDumpFormat = errors.New("unsupported dump format")
