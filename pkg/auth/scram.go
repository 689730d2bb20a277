// Package auth implements the authentication mechanisms a session may be
// asked to perform during startup: cleartext, MD5, and SCRAM-SHA-256.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ScramMechanism is the SASL mechanism name this driver offers. PostgreSQL
// also advertises "SCRAM-SHA-256-PLUS" for channel binding, which this
// driver does not implement (see DESIGN.md).
const ScramMechanism = "SCRAM-SHA-256"

// ScramClient drives the client side of a SCRAM-SHA-256 exchange (RFC
// 7677). It is single-use: create one per authentication attempt.
type ScramClient struct {
	username string
	password string

	clientNonce        string
	clientFirstMsgBare string
	serverFirstMsg     string
	saltedPassword     []byte
	authMessage        string
}

// NewScramClient begins a new exchange for the given username and
// password. The username is not actually transmitted in the
// client-first-message (PostgreSQL's convention is to leave it empty,
// since the startup message already carried it), but is kept for
// symmetry with the wire format's "n=" attribute.
func NewScramClient(username, password string) (*ScramClient, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("scram: generate client nonce: %w", err)
	}
	return &ScramClient{
		username:    username,
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// ClientFirstMessage returns the SASLInitialResponse payload: a GS2 header
// (no channel binding, "n,,") followed by the bare client-first-message.
func (c *ScramClient) ClientFirstMessage() string {
	c.clientFirstMsgBare = "n=,r=" + c.clientNonce
	return "n,," + c.clientFirstMsgBare
}

// ReceiveServerFirstMessage parses the server's "r=...,s=...,i=..." message
// and derives SaltedPassword. It must be called exactly once, before
// ClientFinalMessage.
func (c *ScramClient) ReceiveServerFirstMessage(serverFirstMsg string) error {
	attrs := parseAttributes(serverFirstMsg)

	combinedNonce, ok := attrs["r"]
	if !ok {
		return errors.New("scram: server-first-message missing nonce")
	}
	if !strings.HasPrefix(combinedNonce, c.clientNonce) {
		return errors.New("scram: server nonce does not extend client nonce")
	}

	saltB64, ok := attrs["s"]
	if !ok {
		return errors.New("scram: server-first-message missing salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return fmt.Errorf("scram: invalid salt encoding: %w", err)
	}

	iterStr, ok := attrs["i"]
	if !ok {
		return errors.New("scram: server-first-message missing iteration count")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return fmt.Errorf("scram: invalid iteration count %q", iterStr)
	}

	c.serverFirstMsg = serverFirstMsg
	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)
	return nil
}

// ClientFinalMessage computes and returns the client-final-message,
// including the proof, to be sent as the SASLResponse payload.
func (c *ScramClient) ClientFinalMessage() (string, error) {
	if c.saltedPassword == nil {
		return "", errors.New("scram: ClientFinalMessage called before ReceiveServerFirstMessage")
	}

	attrs := parseAttributes(c.serverFirstMsg)
	combinedNonce := attrs["r"]

	// channel binding is "n,," with no data, base64 of that gs2 header.
	clientFinalWithoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,")) + ",r=" + combinedNonce

	authMessage := c.clientFirstMsgBare + "," + c.serverFirstMsg + "," + clientFinalWithoutProof

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))

	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	c.authMessage = authMessage
	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// ReceiveServerFinalMessage verifies the server's "v=..." signature
// against the one this client independently computed. A mismatch means
// the server does not actually know the password (or is not the real
// server), and authentication must fail.
func (c *ScramClient) ReceiveServerFinalMessage(serverFinalMsg string) error {
	attrs := parseAttributes(serverFinalMsg)
	gotB64, ok := attrs["v"]
	if !ok {
		if errAttr, ok := attrs["e"]; ok {
			return fmt.Errorf("scram: server reported error: %s", errAttr)
		}
		return errors.New("scram: server-final-message missing signature")
	}
	got, err := base64.StdEncoding.DecodeString(gotB64)
	if err != nil {
		return fmt.Errorf("scram: invalid server signature encoding: %w", err)
	}

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	want := hmacSHA256(serverKey, []byte(c.authMessage))

	if !hmac.Equal(got, want) {
		return errors.New("scram: server signature mismatch")
	}
	return nil
}

func parseAttributes(msg string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if len(part) >= 2 && part[1] == '=' {
			attrs[part[:1]] = part[2:]
		}
	}
	return attrs
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
