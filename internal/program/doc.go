// Package program holds the keypoints of one sign program together with the
// hardware they target.
//
// A Program is created empty, read from a program file, or bound lazily to
// the program stored on a sign. Lazy programs download and decompile on the
// first call that needs keypoints. Compile renders the device layout for
// upload, Save renders the packed file layout.
package program
