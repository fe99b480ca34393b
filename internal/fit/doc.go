// Package fit implements bounded least-squares fitting of a scalar model to
// weighted data points. Three minimisation strategies are available and can
// be chained so that a later one only runs when the previous one fails to
// converge or produces a non-finite error matrix.
package fit
