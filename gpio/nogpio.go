//go:build nogpio

package gpio

import "github.com/pkg/errors"

func newRPIO() (Facility, error) {
	return nil, errors.New("built with nogpio, rpio driver unavailable")
}

func newPeriph() (Facility, error) {
	return nil, errors.New("built with nogpio, periph driver unavailable")
}
