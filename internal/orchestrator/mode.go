package orchestrator

// Mode is the driver's current operation mode, consulted by the
// presence pipeline (C6) to pick which character buffer a captured
// image is generated into and which follow-up command to issue.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEnrollFirst
	ModeEnrollSecond
	ModeVerify
)

func (m Mode) String() string {
	switch m {
	case ModeEnrollFirst:
		return "enroll-first"
	case ModeEnrollSecond:
		return "enroll-second"
	case ModeVerify:
		return "verify"
	default:
		return "idle"
	}
}
