package admin

import (
	"fmt"
	"net/netip"

	"github.com/go-playground/form/v4"
)

func newFormDecoder() *form.Decoder {
	decoder := form.NewDecoder()
	decoder.RegisterCustomTypeFunc(func(s []string) (interface{}, error) {
		if len(s) == 0 {
			return nil, nil
		}
		addr, err := netip.ParseAddr(s[0])
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		return addr, nil
	}, netip.Addr{})

	return decoder
}
