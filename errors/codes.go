package errors

// Code is the status code reported to the control plane for an operation.
type Code int

const (
	CodeOK Code = iota
	CodeUndefinedError
	CodeValidationError
	CodeInvalidState
)

var codeNames = map[Code]string{
	CodeOK:              "ok",
	CodeUndefinedError:  "undefined_error",
	CodeValidationError: "validation_error",
	CodeInvalidState:    "invalid_state",
}

// String returns the wire name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "undefined_error"
}

// MarshalText encodes the code by name so JSON status bodies stay readable.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a code name. Unknown names decode as CodeUndefinedError.
func (c *Code) UnmarshalText(b []byte) error {
	for code, name := range codeNames {
		if name == string(b) {
			*c = code
			return nil
		}
	}
	*c = CodeUndefinedError
	return nil
}

// CodeOf maps an operation result to its status code. Validation failures
// win over invalid-state failures when both appear in a joined error.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case Is(err, ErrValidation):
		return CodeValidationError
	case Is(err, ErrInvalidState):
		return CodeInvalidState
	default:
		return CodeUndefinedError
	}
}
