package link

import "slices"

// DefaultBaudRate is used when no baud rate is configured.
const DefaultBaudRate = 57600

// BaudRates lists the selectable baud rates in ascending order.
var BaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 28800, 38400, 57600, 76800, 115200, 230400, 460800, 576000, 921600,
}

// IsValidBaudRate reports whether rate is one of BaudRates.
func IsValidBaudRate(rate int) bool {
	_, found := slices.BinarySearch(BaudRates, rate)
	return found
}
