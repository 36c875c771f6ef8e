// mktoken issues a signed identity token for a user id. Development stand-in
// for the identity service's login flow.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/SoftwareDev-01/6.vybe/internal/crypto"
)

func main() {
	privKeyB64 := flag.String("key", "", "Base64-encoded Ed25519 private key")
	user := flag.String("user", "", "User UUID (random when omitted)")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *privKeyB64 == "" {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -key <private-key-base64> [-user <uuid>] [-ttl <duration>]")
		os.Exit(1)
	}

	priv, err := crypto.ParsePrivateKey(*privKeyB64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
		os.Exit(1)
	}

	userID := uuid.New()
	if *user != "" {
		userID, err = uuid.Parse(*user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid user id: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("User:  %s\n", userID)
	fmt.Printf("Token: %s\n", crypto.IssueToken(priv, userID, *ttl))
}
