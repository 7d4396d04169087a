package accounts

// ModalState is the lifecycle of an edit or delete dialog.
type ModalState int

const (
	Closed ModalState = iota
	Staged
	Submitting
	Failed
)

func (s ModalState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Staged:
		return "staged"
	case Submitting:
		return "submitting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Modal is a staged working copy of one account. Target is only meaningful
// when State is not Closed.
type Modal struct {
	State  ModalState
	Target Account
	// Password and Confirmation are only used by the edit dialog; empty
	// means "keep the current password".
	Password     string
	Confirmation string
	// Reason holds the failure message while State is Failed.
	Reason string
}

// IsOpen reports whether the dialog is visible.
func (m Modal) IsOpen() bool {
	return m.State != Closed
}

func (m Modal) editable() bool {
	return m.State == Staged || m.State == Failed
}

func stage(a Account) Modal {
	return Modal{State: Staged, Target: a}
}
