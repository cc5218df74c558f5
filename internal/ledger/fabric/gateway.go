// Package fabric implements the ledger gateway over Hyperledger Fabric using
// the Fabric Gateway client API. Credentials come from a file wallet laid out
// as <walletPath>/<identity>/cert.pem and key.pem; the peer endpoint and TLS
// material come from the network profile.
package fabric

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"landledger/internal/domain"
	"landledger/internal/ledger"
)

// Gateway dials Fabric peers and opens identity-bound channel sessions.
type Gateway struct {
	walletPath string
}

// NewGateway creates a Fabric-backed gateway reading credentials from walletPath.
func NewGateway(walletPath string) *Gateway {
	return &Gateway{walletPath: walletPath}
}

// Connect implements ledger.Gateway.
func (g *Gateway) Connect(ctx context.Context, id domain.Identity, profile domain.NetworkProfile) (ledger.Session, error) {
	certPEM, keyPEM, err := g.readCredentials(id.Name)
	if err != nil {
		return nil, err
	}

	cert, err := identity.CertificateFromPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("parse certificate for %q: %w", id.Name, err)
	}
	x509ID, err := identity.NewX509Identity(profile.MSPID, cert)
	if err != nil {
		return nil, fmt.Errorf("build identity for %q: %w", id.Name, err)
	}
	key, err := identity.PrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key for %q: %w", id.Name, err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, fmt.Errorf("build signer for %q: %w", id.Name, err)
	}

	conn, err := g.dial(profile)
	if err != nil {
		return nil, err
	}

	gw, err := client.Connect(x509ID,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(10*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect gateway: %w: %w", ledger.ErrConnection, err)
	}

	network := gw.GetNetwork(profile.ChannelName)
	return &session{
		gw:       gw,
		conn:     conn,
		contract: network.GetContract(profile.ChaincodeName),
		identity: id,
		channel:  profile.ChannelName,
	}, nil
}

func (g *Gateway) readCredentials(name string) (cert, key []byte, err error) {
	dir := filepath.Join(g.walletPath, name)
	cert, err = os.ReadFile(filepath.Join(dir, "cert.pem"))
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q: %w", name, ledger.ErrIdentityNotFound)
	}
	key, err = os.ReadFile(filepath.Join(dir, "key.pem"))
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q key: %w", name, ledger.ErrIdentityNotFound)
	}
	return cert, key, nil
}

func (g *Gateway) dial(profile domain.NetworkProfile) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if profile.TLSCertPath != "" {
		pem, err := os.ReadFile(profile.TLSCertPath)
		if err != nil {
			return nil, fmt.Errorf("read TLS cert: %w: %w", ledger.ErrConnection, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse TLS cert: %w", ledger.ErrConnection)
		}
		creds = credentials.NewClientTLSFromCert(pool, "")
	}
	conn, err := grpc.NewClient(profile.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", profile.Endpoint, ledger.ErrConnection, err)
	}
	return conn, nil
}

type session struct {
	gw       *client.Gateway
	conn     *grpc.ClientConn
	contract *client.Contract
	identity domain.Identity
	channel  string
}

func (s *session) Identity() domain.Identity { return s.identity }
func (s *session) Channel() string           { return s.channel }

func (s *session) Close() error {
	s.gw.Close()
	return s.conn.Close()
}

func (s *session) Submit(ctx context.Context, operation string, args ...string) (ledger.SubmitResult, error) {
	proposal, err := s.contract.NewProposal(operation, client.WithArguments(args...))
	if err != nil {
		return ledger.SubmitResult{}, fmt.Errorf("build proposal: %w", err)
	}

	transaction, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return ledger.SubmitResult{}, classify(operation, err)
	}

	commit, err := transaction.SubmitWithContext(ctx)
	if err != nil {
		return ledger.SubmitResult{}, classify(operation, err)
	}

	status, err := commit.StatusWithContext(ctx)
	if err != nil {
		return ledger.SubmitResult{}, classify(operation, err)
	}
	if !status.Successful {
		return ledger.SubmitResult{}, fmt.Errorf("%s: transaction %s invalidated with code %d",
			operation, status.TransactionID, int32(status.Code))
	}

	return ledger.SubmitResult{
		Payload:       transaction.Result(),
		TransactionID: status.TransactionID,
		BlockNumber:   status.BlockNumber,
	}, nil
}

func (s *session) Evaluate(ctx context.Context, query string, args ...string) ([]byte, error) {
	payload, err := s.contract.EvaluateWithContext(ctx, query, client.WithArguments(args...))
	if err != nil {
		return nil, classify(query, err)
	}
	return payload, nil
}

// classify maps chaincode and transport failures onto the package sentinels.
// The chaincode reports duplicates and absent keys in its error text; gRPC
// transport failures are connection faults.
func classify(operation string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%s: %w: %w", operation, ledger.ErrDuplicateKey, err)
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%s: %w: %w", operation, ledger.ErrNotFound, err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "Unavailable"),
		strings.Contains(msg, "context deadline exceeded"):
		return fmt.Errorf("%s: %w: %w", operation, ledger.ErrConnection, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
