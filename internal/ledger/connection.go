package ledger

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// ErrConnection marks credential or transport failures during gateway setup.
// These are fatal to process startup.
var ErrConnection = errors.New("ledger connection error")

// Per-operation gateway deadlines.
const (
	evaluateTimeout     = 5 * time.Second
	endorseTimeout      = 15 * time.Second
	submitTimeout       = 5 * time.Second
	commitStatusTimeout = 60 * time.Second
)

// Connection owns the process-wide gRPC channel and gateway handle. Both are
// created once, shared read-only by all request handlers, and closed exactly
// once at shutdown: gateway first, then channel.
type Connection struct {
	Gateway *client.Gateway

	conn      *grpc.ClientConn
	closeOnce sync.Once
}

// Connect builds the transport channel, client identity, and transaction
// signer from the profile and opens a gateway session.
func Connect(profile *Profile) (*Connection, error) {
	conn, err := newGrpcConnection(profile)
	if err != nil {
		return nil, err
	}

	id, err := newIdentity(profile)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sign, err := newSign(profile)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gateway, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(evaluateTimeout),
		client.WithEndorseTimeout(endorseTimeout),
		client.WithSubmitTimeout(submitTimeout),
		client.WithCommitStatusTimeout(commitStatusTimeout),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: connecting gateway: %v", ErrConnection, err)
	}

	return &Connection{Gateway: gateway, conn: conn}, nil
}

// Network returns the channel-scoped network handle.
func (c *Connection) Network(channel string) *client.Network {
	return c.Gateway.GetNetwork(channel)
}

// Close releases the gateway session and the underlying channel. Safe to call
// more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.Gateway.Close()
		err = c.conn.Close()
	})
	return err
}

func newGrpcConnection(profile *Profile) (*grpc.ClientConn, error) {
	pem, err := os.ReadFile(profile.Peer.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading peer TLS certificate: %v", ErrConnection, err)
	}

	cert, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing peer TLS certificate: %v", ErrConnection, err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	creds := credentials.NewClientTLSFromCert(pool, profile.Peer.ServerNameOverride)

	conn, err := grpc.NewClient(profile.Peer.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnection, profile.Peer.Endpoint, err)
	}
	return conn, nil
}

func newIdentity(profile *Profile) (*identity.X509Identity, error) {
	pem, err := os.ReadFile(profile.Identity.CertPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading identity certificate: %v", ErrConnection, err)
	}

	cert, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing identity certificate: %v", ErrConnection, err)
	}

	id, err := identity.NewX509Identity(profile.MSPID, cert)
	if err != nil {
		return nil, fmt.Errorf("%w: building identity: %v", ErrConnection, err)
	}
	return id, nil
}

// newSign loads the sole private key from the keystore directory.
func newSign(profile *Profile) (identity.Sign, error) {
	keyPath, err := firstKeyFile(profile.Identity.KeystoreDir)
	if err != nil {
		return nil, err
	}

	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading private key: %v", ErrConnection, err)
	}

	key, err := identity.PrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrConnection, err)
	}

	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, fmt.Errorf("%w: building signer: %v", ErrConnection, err)
	}
	return sign, nil
}

func firstKeyFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: reading keystore directory: %v", ErrConnection, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: keystore directory %s holds no key file", ErrConnection, dir)
}
