// ABOUTME: Version and identification constants
// ABOUTME: Reported in logs, mDNS records and the probe tool
package version

const (
	// Version is the bridge release.
	Version = "0.4.0"
	// Product is the human-readable product name.
	Product = "Discord Voice Bridge"
	// Manufacturer is the publisher shown to control surfaces.
	Manufacturer = "Bitfocus"
)
