// Package tlsroots builds the TLS client configuration used to reach the
// identity service.
//
// It trusts the system roots plus an optional private CA bundle, and can
// present a client certificate for mutual TLS. The client certificate is
// served through GetClientCertificate, so a CertWatcher can swap in a
// renewed key pair without restarting the process.
package tlsroots
