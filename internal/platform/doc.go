// Package platform adapts host facilities to the session monitor:
// connectivity probes and pushed on/off signals such as network
// reachability or application visibility.
package platform
