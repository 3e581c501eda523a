package lifecycle

import "fmt"

// Exit codes reported by the process for the three terminal outcomes.
const (
	ExitCodeClean        = 0
	ExitCodeConstruction = 1
	ExitCodeFatalRuntime = 2
)

// Reason explains why the node transitioned from Running to ShuttingDown.
// It is recorded exactly once by the Coordinator; later triggers observe the
// first recorded value.
type Reason interface {
	fmt.Stringer

	// ExitCode returns the process exit code associated with the reason.
	ExitCode() int

	reason()
}

// UserRequested is recorded when an operator asked the node to stop, usually
// via SIGINT/SIGTERM or an explicit Shutdown call.
type UserRequested struct{}

func (UserRequested) String() string { return "user requested shutdown" }
func (UserRequested) ExitCode() int  { return ExitCodeClean }
func (UserRequested) reason()        {}

// FatalSubsystemFailure is recorded when a registered service reported a
// fatal outcome that the criticality policy escalated to a full shutdown.
type FatalSubsystemFailure struct {
	Subsystem string
	Cause     error
}

func (r FatalSubsystemFailure) String() string {
	return fmt.Sprintf("fatal failure in subsystem %q: %v", r.Subsystem, r.Cause)
}
func (FatalSubsystemFailure) ExitCode() int { return ExitCodeFatalRuntime }
func (FatalSubsystemFailure) reason()       {}

// ConstructionAborted is recorded when the builder failed mid-build and the
// services spawned by earlier stages must be torn down.
type ConstructionAborted struct {
	Cause error
}

func (r ConstructionAborted) String() string {
	return fmt.Sprintf("construction aborted: %v", r.Cause)
}
func (ConstructionAborted) ExitCode() int { return ExitCodeConstruction }
func (ConstructionAborted) reason()       {}
