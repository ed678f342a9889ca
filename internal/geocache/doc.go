// Package geocache keeps letter board geometry tables in a local SQLite
// database so that opening a sign does not re-read every table over USB.
//
// Rows carry an xxhash digest of the packed coordinates. A row whose digest
// no longer matches is dropped and treated as a miss.
package geocache
