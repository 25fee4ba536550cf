package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes everything needed to reach one gateway peer as one
// organization: transport endpoint, TLS trust, and the client's MSP
// credentials.
type Profile struct {
	MSPID string `yaml:"mspId"`

	Peer struct {
		Endpoint           string `yaml:"endpoint"`
		ServerNameOverride string `yaml:"serverNameOverride"`
		TLSCertPath        string `yaml:"tlsCertPath"`
	} `yaml:"peer"`

	Identity struct {
		CertPath    string `yaml:"certPath"`
		KeystoreDir string `yaml:"keystoreDir"`
	} `yaml:"identity"`
}

func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading connection profile: %v", ErrConnection, err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: parsing connection profile: %v", ErrConnection, err)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	switch {
	case p.MSPID == "":
		return fmt.Errorf("%w: profile missing mspId", ErrConnection)
	case p.Peer.Endpoint == "":
		return fmt.Errorf("%w: profile missing peer.endpoint", ErrConnection)
	case p.Peer.TLSCertPath == "":
		return fmt.Errorf("%w: profile missing peer.tlsCertPath", ErrConnection)
	case p.Identity.CertPath == "":
		return fmt.Errorf("%w: profile missing identity.certPath", ErrConnection)
	case p.Identity.KeystoreDir == "":
		return fmt.Errorf("%w: profile missing identity.keystoreDir", ErrConnection)
	}
	return nil
}
