// Package main is a holder-side helper for exercising the gateway locally:
// it creates holder keys, signs proof JWTs, and inspects or trims derived
// credentials. Keys it writes are for development only.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"

	"mdlgate/internal/credential/sdjwt"
	"mdlgate/internal/platform/keys"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "holder-key":
		err = runHolderKey(os.Args[2:], os.Stdout)
	case "proof":
		err = runProof(os.Args[2:], os.Stdout, time.Now())
	case "inspect":
		err = runInspect(os.Args[2:], os.Stdin, os.Stdout)
	case "present":
		err = runPresent(os.Args[2:], os.Stdin, os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `credtool - holder-side helper for the mdlgate issuance flow

Usage:
  credtool <command> [flags]

Commands:
  holder-key   Generate a P-256 holder key; prints the public JWK
  proof        Sign a proof-of-possession JWT with a holder key
  inspect      Decode a derived credential (signature not checked)
  present      Keep only the named disclosures of a credential

Examples:
  credtool holder-key -out holder.pem
  credtool proof -key holder.pem -aud http://localhost:8080
  curl ... | jq -r .credential | credtool present -keep over21`)
}

func runHolderKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("holder-key", flag.ContinueOnError)
	path := fs.String("out", "holder.pem", "Where to write the private key PEM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	pemData, err := keys.EncodePrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*path, pemData, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *path, err)
	}
	return printJSON(out, jose.JSONWebKey{Key: &priv.PublicKey})
}

func runProof(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("proof", flag.ContinueOnError)
	path := fs.String("key", "holder.pem", "Holder private key PEM")
	aud := fs.String("aud", "", "Credential issuer URL (aud claim)")
	nonce := fs.String("nonce", "", "Optional nonce claim")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pemData, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read %s: %w", *path, err)
	}
	priv, err := keys.ParsePrivateKeyPEM(pemData)
	if err != nil {
		return err
	}
	proof, err := signProof(priv, *aud, *nonce, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, proof)
	return err
}

type proofClaims struct {
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

func signProof(priv *ecdsa.PrivateKey, aud, nonce string, now time.Time) (string, error) {
	claims := proofClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if aud != "" {
		claims.Audience = jwt.ClaimStrings{aud}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "openid4vci-proof+jwt"
	return token.SignedString(priv)
}

type inspection struct {
	Header      map[string]any `json:"header"`
	Claims      map[string]any `json:"claims"`
	Disclosures []disclosure   `json:"disclosures"`
}

type disclosure struct {
	Name   string `json:"name"`
	Value  any    `json:"value"`
	Digest string `json:"digest"`
}

func runInspect(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := readCredential(fs.Args(), in)
	if err != nil {
		return err
	}
	result, err := inspect(raw)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func inspect(raw string) (*inspection, error) {
	cred, err := sdjwt.Parse(raw)
	if err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(cred.Envelope, claims)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	result := &inspection{Header: token.Header, Claims: claims, Disclosures: []disclosure{}}
	for _, d := range cred.Disclosures {
		result.Disclosures = append(result.Disclosures, disclosure{Name: d.Name, Value: d.Value, Digest: d.Digest()})
	}
	return result, nil
}

func runPresent(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("present", flag.ContinueOnError)
	keep := fs.String("keep", "", "Comma-separated claim names to disclose")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := readCredential(fs.Args(), in)
	if err != nil {
		return err
	}
	var names []string
	for _, name := range strings.Split(*keep, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	presented, err := sdjwt.Present(raw, names...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, presented)
	return err
}

// readCredential takes the credential from the first argument or stdin.
func readCredential(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(io.LimitReader(in, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", errors.New("no credential given")
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
