// Package fetch defines the error taxonomy for page fetching.
package fetch

import "errors"

// ErrUnreachable signals that the target could not be reached at all:
// DNS failure, refused connection, or a request-level timeout.
var ErrUnreachable = errors.New("target unreachable")

// ErrBlocked signals that the target actively refused the analysis request,
// for example with a 401/403 response.
var ErrBlocked = errors.New("target blocked the request")
