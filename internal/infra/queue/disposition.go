package queue

// Disposition tells a worker loop how to settle a delivery after its
// handler returns. The zero value leaves the delivery in flight, so a
// handler that fails without choosing gets redelivery after the
// visibility timeout.
type Disposition int

const (
	// Leave keeps the delivery in flight. It becomes deliverable again
	// once the visibility timeout elapses; used for transient failures
	// and topics whose lease is held elsewhere.
	Leave Disposition = iota

	// Done acknowledges the delivery and removes it permanently.
	Done

	// Redeliver returns the delivery to the pending queue immediately.
	Redeliver

	// Dead parks the delivery on the dead-letter queue.
	Dead
)

// String returns the settle verb for logs.
func (d Disposition) String() string {
	switch d {
	case Leave:
		return "leave"
	case Done:
		return "done"
	case Redeliver:
		return "redeliver"
	case Dead:
		return "dead"
	}
	return "unknown"
}
