// Package kato contains preset lengths (µm) for the KATO Unitrack series of model railroad tracks.
package kato

const (
	// R718_15 is a 15° curve of radius 718mm.
	R718_15 int64 = 187_972
	// R481_15 is a 15° curve of radius 481mm.
	R481_15 int64 = 125_926
	// EP481_15S is the straight side of a EP481-15L/R switch track.
	EP481_15S int64 = 126_000
	// S60 is commonly found in EP481 sets.
	S60 int64 = 60_000
	// S62 is commonly found in EP481 sets.
	S62 int64 = 62_000
	// S62F is the common feeeder track (product #20-041)
	S62F       = S62
	S64  int64 = 64_000
	S124 int64 = 124_000
	S186 int64 = 186_000
	S248 int64 = 248_000
)
