package chat

import (
	"errors"
	"fmt"

	"github.com/havencare/chatsync/internal/protocol/wire"
)

var (
	// ErrStopped is returned when the client was closed.
	ErrStopped = errors.New("chat client stopped")
	// ErrEmptyRoomID is returned for commands without a room id.
	ErrEmptyRoomID = errors.New("room id is required")
	// ErrEmptyMessage is returned when sending blank content.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrUnknownMessage is returned by Resend for a temp id that is not an
	// optimistic entry of the room.
	ErrUnknownMessage = errors.New("no optimistic message with that temp id")
	// ErrSkipped is wrapped by CommandSkipped reports.
	ErrSkipped = errors.New("command skipped: transport disconnected")
	// ErrInconsistent is wrapped by ProtocolInconsistency reports.
	ErrInconsistent = errors.New("protocol inconsistency")
	// ErrPanic is returned to a caller whose command panicked the loop and
	// wrapped by the report of any recovered panic.
	ErrPanic = errors.New("chat loop panic")
)

// ReportKind classifies a Report.
type ReportKind string

const (
	// KindTransportError covers connect and send failures.
	KindTransportError ReportKind = "transport_error"
	// KindHistoryLoadError covers backlog fetch failures.
	KindHistoryLoadError ReportKind = "history_load_error"
	// KindProtocolInconsistency covers events that reference unknown rooms or
	// messages, or that could not be decoded.
	KindProtocolInconsistency ReportKind = "protocol_inconsistency"
	// KindCommandSkipped covers commands dropped while disconnected.
	KindCommandSkipped ReportKind = "command_skipped"
)

// Report is delivered to Config.Reporter for every failure caught at the
// client boundary. Reports are never returned as errors from the public API.
type Report struct {
	Kind    ReportKind
	RoomID  string
	Command wire.EventName
	Err     error
}

// Error implements error so a Report can be logged or wrapped directly.
func (r Report) Error() string {
	switch {
	case r.Command != "" && r.RoomID != "":
		return fmt.Sprintf("%s: %s (room %s): %v", r.Kind, r.Command, r.RoomID, r.Err)
	case r.Command != "":
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.Command, r.Err)
	case r.RoomID != "":
		return fmt.Sprintf("%s (room %s): %v", r.Kind, r.RoomID, r.Err)
	default:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	}
}

// Unwrap returns the underlying error.
func (r Report) Unwrap() error { return r.Err }

func skipped(command wire.EventName, roomID string) effReport {
	return effReport{Report: Report{Kind: KindCommandSkipped, Command: command, RoomID: roomID, Err: ErrSkipped}}
}

func inconsistent(roomID string, format string, args ...any) effReport {
	return effReport{Report: Report{
		Kind:   KindProtocolInconsistency,
		RoomID: roomID,
		Err:    fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...)),
	}}
}
