// Package version exposes the build version reported by the API and
// embedded in outgoing User-Agent headers.
package version

// Version is the current release of ticketflow.
const Version = "0.3.1"
