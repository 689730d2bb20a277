package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// testScramServer is a minimal server-side SCRAM-SHA-256 implementation
// used only to exercise ScramClient end to end, ported from the verified
// formulas in the teacher's server-role SCRAMServer (compute/verify
// responsibilities mirrored rather than inverted, since this is the
// server half of the test).
type testScramServer struct {
	t *testing.T

	username       string
	password       string
	iterationCount int
	salt           []byte

	clientFirstMsgBare string
	serverFirstMsg     string
	clientNonce        string
	serverNonce        string
}

func newTestScramServer(t *testing.T, username, password string) *testScramServer {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	return &testScramServer{t: t, username: username, password: password, iterationCount: 4096, salt: salt}
}

func (s *testScramServer) processClientFirst(clientFirstMsg string) (string, error) {
	parts := strings.SplitN(clientFirstMsg, ",", 3)
	if len(parts) < 3 {
		return "", errors.New("invalid client-first-message format")
	}
	s.clientFirstMsgBare = parts[2]

	attrs := parseAttributes(s.clientFirstMsgBare)
	clientNonce, ok := attrs["r"]
	if !ok {
		return "", errors.New("missing client nonce")
	}
	s.clientNonce = clientNonce

	serverNonceBytes := make([]byte, 18)
	if _, err := rand.Read(serverNonceBytes); err != nil {
		return "", err
	}
	s.serverNonce = base64.StdEncoding.EncodeToString(serverNonceBytes)

	saltB64 := base64.StdEncoding.EncodeToString(s.salt)
	s.serverFirstMsg = fmt.Sprintf("r=%s%s,s=%s,i=%d", s.clientNonce, s.serverNonce, saltB64, s.iterationCount)
	return s.serverFirstMsg, nil
}

func (s *testScramServer) processClientFinal(clientFinalMsg string) (string, error) {
	attrs := parseAttributes(clientFinalMsg)

	expectedNonce := s.clientNonce + s.serverNonce
	if attrs["r"] != expectedNonce {
		return "", errors.New("nonce mismatch")
	}

	proofB64, ok := attrs["p"]
	if !ok {
		return "", errors.New("missing proof")
	}
	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", err
	}

	clientFinalWithoutProof := regexp.MustCompile(`,p=[^,]*$`).ReplaceAllString(clientFinalMsg, "")
	authMessage := s.clientFirstMsgBare + "," + s.serverFirstMsg + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, s.iterationCount, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKeyHash := sha256.Sum256(clientKey)
	storedKey := storedKeyHash[:]
	clientSignature := hmacSHA256(storedKey, []byte(authMessage))

	if len(clientProof) != len(clientSignature) {
		return "", errors.New("proof length mismatch")
	}
	recoveredClientKey := make([]byte, len(clientProof))
	for i := range clientProof {
		recoveredClientKey[i] = clientProof[i] ^ clientSignature[i]
	}
	recoveredStoredKeyHash := sha256.Sum256(recoveredClientKey)
	if !hmac.Equal(storedKey, recoveredStoredKeyHash[:]) {
		return "", errors.New("authentication failed")
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
}
