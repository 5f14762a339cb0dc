// Command gensecret prints a random key suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const (
	defaultKeyBytes = 32

	// HS256 keys shorter than the hash output weaken the signature
	minKeyBytes = 32
)

func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	n := fs.IntP("bytes", "n", defaultKeyBytes, "Key length in bytes")
	asEnv := fs.Bool("env", false, "Print as SECRET_KEY=<key> line for .env file")
	_ = fs.Parse(os.Args[1:])

	key, err := generate(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	if *asEnv {
		fmt.Printf("SECRET_KEY=%s\n", key)
		return
	}
	fmt.Println(key)
}

func generate(n int) (string, error) {
	if n < minKeyBytes {
		return "", fmt.Errorf("key must be at least %d bytes", minKeyBytes)
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
