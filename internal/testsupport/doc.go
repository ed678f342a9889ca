// Package testsupport provides an in-memory sign and temp-rooted configs for tests.
package testsupport
