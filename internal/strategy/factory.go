package strategy

import "fmt"

// NewProvider returns the signal provider registered under name.
func NewProvider(name string) (Provider, error) {
	switch name {
	case "ma_cross", "":
		return NewMACross(), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}
