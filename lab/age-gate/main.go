// Command age-gate is a toy relying party. It checks a derived credential
// offline against the gateway JWKS and opens the gate when over21 is
// disclosed. It deliberately skips holder binding: any party holding the
// credential string passes, which is what the warning field points out.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"
)

type apiResponse struct {
	Message string         `json:"message"`
	Claims  map[string]any `json:"claims,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func main() {
	port := getenv("PORT", "9100")
	gateway := strings.TrimRight(getenv("GATEWAY_URL", "http://localhost:8080"), "/")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Message: "ok"})
	})
	mux.HandleFunc("/enter", func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r.Header.Get("Authorization"))
		if credential == "" {
			writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "provide Authorization: Bearer <credential>"})
			return
		}
		keys, err := fetchKeys(gateway)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, apiResponse{Message: "gateway keys unavailable", Warning: err.Error()})
			return
		}
		claims, err := verify(credential, keys, time.Now())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "credential rejected", Warning: err.Error()})
			return
		}
		if claims["over21"] != true {
			writeJSON(w, http.StatusForbidden, apiResponse{Message: "over21 not disclosed", Claims: claims})
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{
			Message: "welcome",
			Claims:  claims,
			Warning: "holder binding not checked; a copied credential would also pass",
		})
	})

	addr := fmt.Sprintf(":%s", port)
	log.Printf("toy age gate listening on %s, trusting %s", addr, gateway)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// fetchKeys loads the gateway's signing keys. No caching: every request
// refetches, which is fine for a lab.
func fetchKeys(gateway string) (map[string]*ecdsa.PublicKey, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(gateway + "/.well-known/jwks.json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks status %d", resp.StatusCode)
	}
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}

	out := map[string]*ecdsa.PublicKey{}
	for _, k := range set.Keys {
		if k.Kty != "EC" || k.Crv != "P-256" || k.Use == "enc" {
			continue
		}
		x, errX := base64.RawURLEncoding.DecodeString(k.X)
		y, errY := base64.RawURLEncoding.DecodeString(k.Y)
		if errX != nil || errY != nil {
			continue
		}
		out[k.Kid] = &ecdsa.PublicKey{Curve: elliptic.P256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
	}
	if len(out) == 0 {
		return nil, errors.New("no P-256 signing key published")
	}
	return out, nil
}

// verify checks the ES256 envelope, exp, and returns disclosed claims whose
// digests appear in _sd.
func verify(credential string, keys map[string]*ecdsa.PublicKey, now time.Time) (map[string]any, error) {
	parts := strings.Split(credential, "~")
	if len(parts) < 2 || parts[len(parts)-1] != "" {
		return nil, errors.New("credential must be <jwt>~<disclosure>~...~")
	}
	segments := strings.Split(parts[0], ".")
	if len(segments) != 3 {
		return nil, errors.New("envelope is not a compact JWS")
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(segments[0], &header); err != nil {
		return nil, err
	}
	if header.Alg != "ES256" {
		return nil, fmt.Errorf("unexpected alg %q", header.Alg)
	}
	key, ok := keys[header.Kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", header.Kid)
	}
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil || len(sig) != 64 {
		return nil, errors.New("malformed signature")
	}
	digest := sha256.Sum256([]byte(segments[0] + "." + segments[1]))
	r, s := new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(key, digest[:], r, s) {
		return nil, errors.New("signature mismatch")
	}

	var payload struct {
		Exp int64    `json:"exp"`
		SD  []string `json:"_sd"`
	}
	if err := decodeSegment(segments[1], &payload); err != nil {
		return nil, err
	}
	if now.Unix() > payload.Exp {
		return nil, errors.New("credential expired")
	}

	claims := map[string]any{}
	for _, encoded := range parts[1 : len(parts)-1] {
		sum := sha256.Sum256([]byte(encoded))
		if !slices.Contains(payload.SD, base64.RawURLEncoding.EncodeToString(sum[:])) {
			continue
		}
		var arr []any
		if err := decodeSegment(encoded, &arr); err != nil || len(arr) != 3 {
			return nil, errors.New("malformed disclosure")
		}
		if name, ok := arr[1].(string); ok {
			claims[name] = arr[2]
		}
	}
	return claims, nil
}

func decodeSegment(seg string, into any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("decode segment: %w", err)
	}
	return json.Unmarshal(raw, into)
}

func writeJSON(w http.ResponseWriter, status int, payload apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
