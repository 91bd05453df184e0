// Package httputil provides the JSON response envelope shared by the
// operator API handlers.
package httputil
