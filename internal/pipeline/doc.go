// Package pipeline ties the imaging, normalize and score stages together into
// the two user-facing runs: calibration over a set of control images, and
// analysis of experimental images with a fixed parameter set.
//
// # Calibration
//
// Calibrate loads every control image, resamples and reduces it to the
// stained channel, and blurs it at each candidate radius. Per radius it
// thresholds every section with Otsu's method and turns the white fraction
// into a normalization percentile; the percentiles of all control images are
// combined with a geometric mean. Brightness maps are then built for every
// radius so that changing the blur radius or noise margin afterwards only
// re-runs binarization.
//
// The blur radius and noise margin are either taken from the Options or
// estimated from the images. Retune changes them synchronously; a Recomputer
// does the same in the background, nearest images first, and a newer request
// cancels an older one. Every change starts a new tuning generation and
// Calibration.Apply drops updates from any older generation.
//
// # Analysis
//
// Analyze runs the chain once on a single image. AnalyzeBatch fans a list of
// files out over a bounded set of goroutines; a failing image is recorded on
// its own Result and the rest of the batch continues.
//
// # Output
//
// SaveCalibration and SaveAnalysis write into fresh Settings_Output and
// Analysis_Output folders. Settings and score files are replaced atomically.
package pipeline
