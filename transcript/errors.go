package transcript

import "fmt"

// Room states that rule out scanning entirely.
const (
	ReasonFrozen  = "frozen"
	ReasonDeleted = "deleted"
)

// RoomUnavailableError reports a room state (frozen or deleted) that makes
// its transcript pointless to walk. It is never retried.
type RoomUnavailableError struct {
	Server string
	Room   int
	Reason string
}

func (e *RoomUnavailableError) Error() string {
	return fmt.Sprintf("room %s:%d is %s", e.Server, e.Room, e.Reason)
}

// MalformedPageError reports a page that fetched fine but is missing
// structure the walk depends on. The URL is kept so the page can be pulled
// up and inspected by hand.
type MalformedPageError struct {
	URL    string
	Reason string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %s: %s", e.URL, e.Reason)
}

// NetworkError reports an HTTP failure that either exhausted the client's
// retry budget or was not worth retrying in the first place.
type NetworkError struct {
	URL       string
	Status    int
	Retryable bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }
