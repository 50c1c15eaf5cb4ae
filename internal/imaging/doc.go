// Package imaging loads microscopy images and prepares them for junction
// analysis.
//
// It covers the stages that run before any thresholding: decoding and
// caching input files, resampling to a working size, reducing an RGB image to
// the single stained channel, and Gaussian blurring. It also renders the
// section overlay used to inspect how an image will be divided.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Rasters returned by this
// package always start at the origin.
//
// # Rounding
//
// Sizes, section boundaries and scan rows are rounded half to even, so a
// boundary at 12.5 pixels falls on 12 and one at 13.5 falls on 14.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Rasters produced here are
// shared read-only between pipeline stages; a BlurSet in particular is read
// concurrently by the threshold search and must never be modified.
//
// # Error Handling
//
// Load and decode failures are returned as input errors from the errors
// package. Out-of-range parameters such as a negative blur radius are
// validation errors.
package imaging
