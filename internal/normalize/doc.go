// Package normalize turns a blurred single-channel raster into a binary
// junction mask using spatially local thresholds.
//
// The raster is split into an N×N grid of sections. During calibration each
// section is thresholded with Otsu's method to learn what fraction of a
// typical image is junction; that fraction becomes a rank (the normalization
// percentile) into a small M×M sample taken from every section. The sampled
// cutoffs are bilinearly interpolated between section centres into a
// full-resolution brightness map, and a pixel is foreground when it is
// brighter than its local cutoff raised by the noise margin.
//
// The package also holds the calibration-only heuristics that pick a blur
// radius and a noise margin from the oscillation statistics of the central
// row and column.
//
// All functions are pure. Rasters passed in are never modified.
package normalize
