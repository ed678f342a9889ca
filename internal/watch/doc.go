// Package watch reports when a program file on disk settles after a change.
//
// Editors often replace a file through a rename, so the parent directory is
// watched and events are filtered by name. Bursts of events within the
// debounce delay collapse into one notification.
package watch
