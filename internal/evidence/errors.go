package evidence

import "errors"

// ErrNoReport is returned by Compare when either report is missing.
var ErrNoReport = errors.New("evidence report is missing")
