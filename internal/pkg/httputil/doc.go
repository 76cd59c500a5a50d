// Package httputil holds the JSON response and request helpers shared by the
// ops API handlers.
package httputil
