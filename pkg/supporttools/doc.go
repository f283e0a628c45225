// Package supporttools holds the deterministic customer-support tools and the
// capability definitions (prompt plus tool allow-list) the workers run with.
//
// The data behind the tools is fixed mock data: every phone number resolves to
// the same customer, every serial number to the same robot.
package supporttools
