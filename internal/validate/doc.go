// Package validate provides syntax checks for user-supplied scan input:
// IP addresses, port numbers and domain names.
//
// These helpers only look at syntax. They never resolve names or touch the
// network, so they are safe to call before any configuration is trusted.
package validate
