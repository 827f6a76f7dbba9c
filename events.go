package coalescer

const (
	RequestEvent           = "request"
	CoalescedEvent         = "coalesced"
	ArmedEvent             = "armed"
	BatchEvent             = "batch"
	ProcessedEvent         = "processed"
	FailedEvent            = "failed"
	ShutdownEvent          = "shutdown"
	StoredEvent            = "stored"
	TaskEvent              = "task"
	VerifiedContainerEvent = "verified-container"
	CreatedContainerEvent  = "created-container"
	ErrorEvent             = "error"
)
