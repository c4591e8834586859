// Package briefing produces the dashboard's daily summary.
//
// An Aggregator reads task, project and calendar counts from the store,
// asks the assistant to phrase them, and caches the result. When the
// assistant is unavailable it writes the briefing from a template; when no
// data can be read at all it returns a short generic greeting.
package briefing
