package process

import "errors"

// ErrLeaseHeld reports that another processor owns the topic's lease. The
// delivery stays in flight and reappears after its visibility timeout, by
// which point the holder has either finished or lost the lease.
var ErrLeaseHeld = errors.New("topic lease held by another processor")

// ErrBudgetExceeded reports that a cost cap blocked the attempt before any
// tokens were spent. The delivery is returned to the queue; every
// redelivery re-checks the caps until the max delivery count parks it.
var ErrBudgetExceeded = errors.New("cost budget exceeded")

// MalformedError marks a message that can never succeed: an undecodable
// payload, failed validation or a reference to a blob that does not exist.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed message: " + e.Reason
}

// IsMalformed reports whether err is or wraps a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
