// Package keys implements the node's RSA identity: key generation,
// address derivation, and PKCS#1 v1.5 signing/verification over
// SHA-256. Grounded on original_source/src/key_manager.rs; the DER +
// PKCS#1v1.5 primitives come from stdlib crypto/rsa and crypto/x509
// (see SPEC_FULL.md §4 for why no pack library fits — the rest of the
// corpus signs with secp256k1, an incompatible curve for this wire
// format).
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/address"
	"github.com/simbtc/simbtc/internal/hashutil"
)

// rsaKeyBits is the modulus size spec.md §2 mandates for the key
// manager ("2048-bit RSA keypair").
const rsaKeyBits = 2048

// Manager owns a single RSA keypair and derives the node's address
// from it.
type Manager struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	addr    address.Address
}

// NewManager generates a fresh 2048-bit RSA keypair. A failure here is
// fatal at startup (spec.md §7, KeygenFailed).
func NewManager() (*Manager, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}
	return newManagerFromKey(priv)
}

func newManagerFromKey(priv *rsa.PrivateKey) (*Manager, error) {
	der := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	return &Manager{
		private: priv,
		public:  &priv.PublicKey,
		addr:    address.Address(hashutil.ToHex(der)),
	}, nil
}

// Address returns hex(DER(pubkey)), the node's address (spec.md §3).
func (m *Manager) Address() address.Address {
	return m.addr
}

// Sign computes an RSA PKCS#1v1.5 signature over SHA-256(data) using
// the manager's private key, returned as a lowercase hex string ready
// to travel on the wire alongside a NewTransaction payload (spec.md
// §4.1, §4.7 I5).
func (m *Manager) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, m.private, crypto.SHA256, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "failed to sign data")
	}
	return hashutil.ToHex(sig), nil
}

// Verify checks a hex-encoded PKCS#1v1.5 signature over SHA-256(data)
// against the public key recovered from addr (spec.md §4.1).
// Verification failure is not fatal (spec.md §7, SignatureInvalid):
// the caller should reject the message and keep running.
func Verify(addr address.Address, data []byte, sigHex string) error {
	pub, err := PublicKeyFromAddress(addr)
	if err != nil {
		return errors.Wrap(err, "failed to recover public key from address")
	}
	sig, err := hashutil.FromHex(sigHex)
	if err != nil {
		return errors.Wrap(err, "failed to decode signature hex")
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return errors.Wrap(err, "signature verification failed")
	}
	return nil
}

// PublicKeyFromAddress decodes the DER-encoded public key embedded in
// addr.
func PublicKeyFromAddress(addr address.Address) (*rsa.PublicKey, error) {
	der, err := hashutil.FromHex(addr.String())
	if err != nil {
		return nil, errors.Wrap(err, "address is not valid hex")
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "address does not decode to a DER RSA public key")
	}
	return pub, nil
}
