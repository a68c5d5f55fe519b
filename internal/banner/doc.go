// Package banner turns raw service greetings into display strings.
//
// It has two halves. Clean and its helpers decode untrusted bytes into text
// without ever failing: valid UTF-8 is used as-is, binary data is reduced to
// its printable runs, and as a last resort a short escaped representation is
// produced. Matcher then classifies the decoded text against an ordered list
// of service signatures (SSH, HTTP, SMTP, FTP, MySQL, POP3) and formats the
// result as "<Service> (<detail>)".
//
// Nothing in this package performs I/O. Protocol handlers and the service
// detector feed it bytes they have already read.
package banner
