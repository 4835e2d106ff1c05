package auth

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestHashMessage_Deterministic(t *testing.T) {
	msg := []byte("hello mintgate")
	if HashMessage(msg) != HashMessage(msg) {
		t.Fatal("HashMessage is not deterministic")
	}
}

func TestHashMessage_DifferentMessages(t *testing.T) {
	if HashMessage([]byte("foo")) == HashMessage([]byte("bar")) {
		t.Fatal("different messages produced the same hash")
	}
}

// The personal-message prefix must actually land in the hash, or wallet
// signatures would verify against raw keccak digests.
func TestHashMessage_PrefixApplied(t *testing.T) {
	msg := []byte(`{"action":"mint"}`)
	if HashMessage(msg) == crypto.Keccak256Hash(msg) {
		t.Fatal("EIP-191 prefix not applied")
	}
}

// TestRecover_ValidSignature is the core test: sign a message with a known
// key, recover the address, and verify it matches.
func TestRecover_ValidSignature(t *testing.T) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	expected := crypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte(`{"action":"mint","nonce":"abc","resource":"public"}`)
	hash := HashMessage(msg)

	// crypto.Sign returns V in {0,1}; Ethereum convention is {27,28}
	sig, err := crypto.Sign(hash[:], privKey)
	if err != nil {
		t.Fatal(err)
	}
	sig[64] += 27

	got, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if got != expected {
		t.Errorf("got %s, want %s", got.Hex(), expected.Hex())
	}
}

// TestRecover_V0and1 verifies that V in {0,1} (without +27) also works.
func TestRecover_V0and1(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	expected := crypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte("test message")
	hash := HashMessage(msg)
	sig, _ := crypto.Sign(hash[:], privKey)
	// Leave V as 0 or 1 (no +27)

	got, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if got != expected {
		t.Errorf("got %s, want %s", got.Hex(), expected.Hex())
	}
}

// TestRecover_WrongMessage verifies that signing one message and recovering
// with a different message returns a different (wrong) address.
func TestRecover_WrongMessage(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	expected := crypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte("original message")
	hash := HashMessage(msg)
	sig, _ := crypto.Sign(hash[:], privKey)
	sig[64] += 27

	wrong, err := Recover([]byte("tampered message"), sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrong == expected {
		t.Error("tampered message should not recover the original signer")
	}
}

func TestRecover_InvalidSigLength(t *testing.T) {
	if _, err := Recover([]byte("msg"), []byte("tooshort")); err == nil {
		t.Fatal("expected error for short signature")
	}
}
