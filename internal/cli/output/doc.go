// Package output renders tokmesh-session command results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: key/value and list tables with wide mode
//   - json.go, yaml.go: machine-readable output for scripting
//   - view.go: masked views of session records and monitor status
//   - lifetime.go: remaining-lifetime bar shown by status
//   - spinner.go: progress animation while a refresh is in flight
package output
