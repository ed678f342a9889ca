// Package builder is the authoring surface for sign programs.
//
// A Builder carries a time cursor that keypoints default to. Only one build
// runs at a time in a process; Build holds a package lock for the whole
// callback so that concurrent authors serialize instead of interleaving.
package builder
