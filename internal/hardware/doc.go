// Package hardware models the physical pixel layout of a sign.
//
// A sign has eight letter slots. Each slot holds a geometry key (zero when the
// slot is empty) naming a letter board whose LEDs are described by a table of
// packed xy coordinates. Pixel indices are assigned slot by slot, LedDepth
// indices per slot, so the pixel at position j of slot s has index
// s·LedDepth + j. Indices past the end of a shorter board are absent.
package hardware
