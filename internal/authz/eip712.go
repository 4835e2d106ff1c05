package authz

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var authorizationTypeHash = crypto.Keccak256Hash([]byte(
	"MintAuthorization(address recipient,uint256 tokenId,uint32 amount,uint256 nonce,uint256 expiry,string stage)",
))

// domainSeparator computes the EIP-712 domain separator. The verifying
// contract is the collection address, which scopes every authorization to
// one deployment.
func domainSeparator(chainID *big.Int, collectionAddr common.Address) [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	nameHash := crypto.Keccak256Hash([]byte("Staged Mint Gateway"))
	versionHash := crypto.Keccak256Hash([]byte("1"))

	// ABI-encode: (bytes32, bytes32, bytes32, uint256, address)
	// Each element is padded to 32 bytes (left-padded for uint/addr)
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	chainID.FillBytes(encoded[96:128])
	copy(encoded[140:160], collectionAddr.Bytes()) // addr is right-aligned in 32-byte slot

	return crypto.Keccak256Hash(encoded)
}

// Digest builds the EIP-712 signing digest for an authorization.
// The stage name is a dynamic field, so its keccak hash occupies the slot.
func Digest(a *MintAuthorization, chainID *big.Int, collectionAddr common.Address) [32]byte {
	stageHash := crypto.Keccak256Hash([]byte(a.Stage))

	// structHash = keccak256(typeHash || abi.encode(fields))
	encoded := make([]byte, 7*32)
	copy(encoded[0:32], authorizationTypeHash[:])
	copy(encoded[44:64], a.Recipient.Bytes()) // padded address
	a.TokenID.FillBytes(encoded[64:96])
	big.NewInt(int64(a.Amount)).FillBytes(encoded[96:128])
	a.Nonce.FillBytes(encoded[128:160])
	big.NewInt(a.Expiry).FillBytes(encoded[160:192])
	copy(encoded[192:224], stageHash[:])

	structHash := crypto.Keccak256Hash(encoded)
	sep := domainSeparator(chainID, collectionAddr)

	// Final digest: keccak256(0x1901 || domainSeparator || structHash)
	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}

// Sign signs the authorization in-place with the allow-list signer key.
func Sign(a *MintAuthorization, privKey *ecdsa.PrivateKey, chainID *big.Int, collectionAddr common.Address) error {
	digest := Digest(a, chainID, collectionAddr)
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return err
	}
	// Convert V from 0/1 to 27/28 for ecrecover parity with wallet signers
	sig[64] += 27
	a.Signature = sig
	return nil
}

// RecoverSigner recovers the address that produced sig over digest.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func RecoverSigner(digest [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sigCopy)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
