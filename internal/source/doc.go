// Package source talks to the content service's REST surface. It provides
// the HTTP client, the credential connector that turns stored tokens into
// live sessions, and the executor that relays one task's payload from the
// source chat to the destination chat through a local spool file.
package source
