package scripts

import "fmt"

// ScriptError reports a failed external process. Output holds whatever the
// process wrote to stderr (or stdout when stderr was empty).
type ScriptError struct {
	Op       string
	Err      error
	Message  string
	Output   string
	ExitCode int
}

func (e *ScriptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func newScriptError(op string, err error, message string) *ScriptError {
	return &ScriptError{
		Op:       op,
		Err:      err,
		Message:  message,
		ExitCode: -1,
	}
}
