package crypto

import (
	"crypto/ecdsa"
	"errors"

	"github.com/btcsuite/btcd/btcec"
	"github.com/umbracle/fastrlp"
	"golang.org/x/crypto/sha3"

	"github.com/attestra-network/attestra-executor/types"
)

// S256 is the secp256k1 curve used for proof signing and key handling.
var S256 = btcec.S256()

// Keccak256 computes the legacy keccak digest over the concatenation of
// the inputs.
func Keccak256(v ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, i := range v {
		h.Write(i)
	}

	return h.Sum(nil)
}

// Keccak256Hash is Keccak256 returning a types.Hash.
func Keccak256Hash(v ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(v...))
}

// CreateAddress derives the address of a contract created by (addr, nonce):
// keccak(rlp([addr, nonce]))[12:].
func CreateAddress(addr types.Address, nonce uint64) types.Address {
	a := &fastrlp.Arena{}

	v := a.NewArray()
	v.Set(a.NewCopyBytes(addr.Bytes()))
	v.Set(a.NewUint(nonce))

	return types.BytesToAddress(Keccak256(v.MarshalTo(nil))[12:])
}

// GenerateECDSAKey creates a new secp256k1 private key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	key, err := btcec.NewPrivateKey(S256)
	if err != nil {
		return nil, err
	}

	return key.ToECDSA(), nil
}

// ParseECDSAKey restores a private key from its 32-byte scalar.
func ParseECDSAKey(buf []byte) (*ecdsa.PrivateKey, error) {
	if len(buf) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}

	priv, _ := btcec.PrivKeyFromBytes(S256, buf)

	return priv.ToECDSA(), nil
}

// PubKeyToAddress derives the account address of a public key.
func PubKeyToAddress(pub *ecdsa.PublicKey) types.Address {
	buf := Keccak256(elliptic(pub))[12:]

	return types.BytesToAddress(buf)
}

func elliptic(pub *ecdsa.PublicKey) []byte {
	return (*btcec.PublicKey)(pub).SerializeUncompressed()[1:]
}

// Sign produces a 65-byte [R || S || V] recoverable signature over hash.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	sig, err := btcec.SignCompact(S256, (*btcec.PrivateKey)(priv), hash, false)
	if err != nil {
		return nil, err
	}

	// btcec puts the recovery id first, Ethereum keeps it last
	term := byte(0)
	if sig[0] == 28 {
		term = 1
	}

	return append(sig, term)[1:], nil
}

// RecoverPubKey returns the public key that produced the [R || S || V]
// signature over hash.
func RecoverPubKey(signature, hash []byte) (*ecdsa.PublicKey, error) {
	size := len(signature)
	if size != 65 {
		return nil, errors.New("signature must be 65 bytes")
	}

	term := byte(27)
	if signature[size-1] == 1 {
		term = 28
	}

	sig := append([]byte{term}, signature[:size-1]...)

	pub, _, err := btcec.RecoverCompact(S256, sig, hash)
	if err != nil {
		return nil, err
	}

	return pub.ToECDSA(), nil
}

// RecoverAddress is RecoverPubKey folded down to an account address.
func RecoverAddress(signature, hash []byte) (types.Address, error) {
	pub, err := RecoverPubKey(signature, hash)
	if err != nil {
		return types.ZeroAddress, err
	}

	return PubKeyToAddress(pub), nil
}
