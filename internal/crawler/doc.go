// Package crawler harvests the upstream report API page by page. A pure
// state machine (State) decides what happens next, a quota table decides how
// long to pause between calls, and Engine drives the loop, storing every page
// before the next one is requested.
package crawler
