// Package checks implements the individual analysis checks. Each check is a
// pure function over a fetched PageContext and owns no orchestration concerns:
// timeouts, isolation, and scheduling belong to the stage orchestrator.
package checks
