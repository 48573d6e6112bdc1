package config

import "fmt"

// SocketConfig addresses the length-prefixed, CBOR-framed control socket the
// coordinator dials to reach its enclave. A nonzero VsockCID selects a
// vsock dial; otherwise Host/Port are used, which is how local and test
// runs reach a plain TCP-backed enclave process.
type SocketConfig struct {
	VsockCID uint32 `yaml:"vsockCID"`
	Host     string `yaml:"host"`
	Port     uint32 `yaml:"port"`
}

func (s *SocketConfig) validate() []string {
	var errs []string
	if s.VsockCID == 0 && s.Host == "" {
		errs = append(errs, "must provide either VsockCID or Host")
	}
	if s.Port == 0 {
		errs = append(errs, fmt.Sprintf("invalid Port: %v", s.Port))
	}
	return errs
}
