package auth

import (
	"strings"
	"testing"
)

// TestScramClientExchange drives a full three-leg exchange against a
// hand-computed server side. The test server uses RFC 7677's iteration
// count (4096) but a random salt and random nonces, so this checks that
// both sides agree rather than comparing against RFC 7677's fixed values.
func TestScramClientExchange(t *testing.T) {
	const username = "user"
	const password = "pencil"

	client, err := NewScramClient(username, password)
	if err != nil {
		t.Fatal(err)
	}

	clientFirst := client.ClientFirstMessage()
	if !strings.HasPrefix(clientFirst, "n,,n=,r=") {
		t.Fatalf("unexpected client-first-message: %q", clientFirst)
	}

	clientNonce := strings.TrimPrefix(clientFirst, "n,,n=,r=")

	// Emulate the server side using the verified formulas from the
	// teacher's scram_server.go, so this test exercises the actual wire
	// exchange shape rather than asserting internal fields.
	server := newTestScramServer(t, username, password)
	serverFirst, err := server.processClientFirst(clientFirst)
	if err != nil {
		t.Fatalf("server rejected client-first-message: %v", err)
	}
	_ = clientNonce

	if err := client.ReceiveServerFirstMessage(serverFirst); err != nil {
		t.Fatalf("ReceiveServerFirstMessage: %v", err)
	}

	clientFinal, err := client.ClientFinalMessage()
	if err != nil {
		t.Fatalf("ClientFinalMessage: %v", err)
	}

	serverFinal, err := server.processClientFinal(clientFinal)
	if err != nil {
		t.Fatalf("server rejected client-final-message: %v", err)
	}

	if err := client.ReceiveServerFinalMessage(serverFinal); err != nil {
		t.Fatalf("ReceiveServerFinalMessage: %v", err)
	}
}

func TestScramClientRejectsWrongPassword(t *testing.T) {
	client, err := NewScramClient("user", "wrong-password")
	if err != nil {
		t.Fatal(err)
	}
	clientFirst := client.ClientFirstMessage()

	server := newTestScramServer(t, "user", "pencil")
	serverFirst, err := server.processClientFirst(clientFirst)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.ReceiveServerFirstMessage(serverFirst); err != nil {
		t.Fatal(err)
	}
	clientFinal, err := client.ClientFinalMessage()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.processClientFinal(clientFinal); err == nil {
		t.Fatal("expected server to reject client final message with wrong password, got nil error")
	}
}

func TestScramClientRejectsForgedServerSignature(t *testing.T) {
	client, err := NewScramClient("user", "pencil")
	if err != nil {
		t.Fatal(err)
	}
	clientFirst := client.ClientFirstMessage()

	server := newTestScramServer(t, "user", "pencil")
	serverFirst, err := server.processClientFirst(clientFirst)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.ReceiveServerFirstMessage(serverFirst); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ClientFinalMessage(); err != nil {
		t.Fatal(err)
	}

	forged := "v=" + strings.Repeat("A", 44)
	if err := client.ReceiveServerFinalMessage(forged); err == nil {
		t.Fatal("expected forged server signature to be rejected")
	}
}
