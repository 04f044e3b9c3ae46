package pools

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

// CreateTLSConfig creates a x509 TLS Config for use in TLS-based communication.
// localLocation must hold both the client certificate and its key.
func CreateTLSConfig(pemLocation string, localLocation string) (*tls.Config, error) {
	cfg := new(tls.Config)
	cfg.RootCAs = x509.NewCertPool()

	ca, err := os.ReadFile(pemLocation)
	if err != nil {
		return nil, err
	}

	if ok := cfg.RootCAs.AppendCertsFromPEM(ca); !ok {
		return nil, errors.New("no certificates found in pem file")
	}

	cert, err := tls.LoadX509KeyPair(
		localLocation,
		localLocation)
	if err != nil {
		return nil, err
	}

	cfg.Certificates = append(cfg.Certificates, cert)
	return cfg, nil
}
