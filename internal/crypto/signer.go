package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// signatureLen is the length of a secp256k1 signature with recovery byte.
const signatureLen = 65

// canonicalRequest builds the message that is signed for an API request.
// The body is reduced to its keccak256 hash so large payloads stay cheap to
// sign and the message itself stays printable. The nonce is a one-time value
// chosen by the client; the server rejects a nonce it has seen before, so a
// captured signature cannot be replayed:
//
//	oracled\n<METHOD>\n<PATH>\n<TIMESTAMP>\n<NONCE>\n<keccak256(body) hex>
func canonicalRequest(method, path string, body []byte, timestamp int64, nonce string) []byte {
	bodyHash := hex.EncodeToString(ethcrypto.Keccak256(body))
	msg := strings.Join([]string{
		"oracled",
		strings.ToUpper(method),
		path,
		strconv.FormatInt(timestamp, 10),
		nonce,
		bodyHash,
	}, "\n")
	return []byte(msg)
}

// Signer signs API requests with a secp256k1 private key. It is the client
// side of the signature scheme that RecoverAddress verifies.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest produces a hex-encoded 65-byte signature over the canonical
// form of the request. The digest uses the EIP-191 personal-message prefix
// so signatures are compatible with standard wallet tooling.
func (s *Signer) SignRequest(method, path string, body []byte, timestamp int64, nonce string) (string, error) {
	digest := accounts.TextHash(canonicalRequest(method, path, body, timestamp, nonce))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}

	// Use the Ethereum convention of 27/28 for the recovery byte.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAddress verifies a request signature and returns the address that
// produced it. It accepts recovery bytes in both the raw (0/1) and Ethereum
// (27/28) conventions.
func RecoverAddress(method, path string, body []byte, timestamp int64, nonce, sigHex string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: invalid signature hex: %w", err)
	}
	if len(raw) != signatureLen {
		return common.Address{}, fmt.Errorf("crypto/signer: expected %d-byte signature, got %d", signatureLen, len(raw))
	}

	sig := make([]byte, signatureLen)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, errors.New("crypto/signer: invalid recovery byte")
	}

	digest := accounts.TextHash(canonicalRequest(method, path, body, timestamp, nonce))

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*pub), nil
}
