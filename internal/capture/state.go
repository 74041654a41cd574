package capture

// State is the loop's lifecycle state.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why the loop left Running.
type StopReason string

const (
	StopStreamEnded StopReason = "stream_ended"
	StopReadError   StopReason = "read_error"
	StopCancelled   StopReason = "cancelled"
	StopMaxFrames   StopReason = "max_frames"
)

// Summary holds per-run counters.
type Summary struct {
	Frames           uint64
	Detections       uint64
	DetectorFailures uint64
	New              uint64
	Duplicates       uint64
	AlreadyPresent   uint64
	ArchiveFailures  uint64
	StoreFailures    uint64
	StopReason       StopReason
}
