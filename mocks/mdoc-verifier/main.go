// Command mdoc-verifier is a local stand-in for the remote mDL verifier and
// the trust list publisher. Proof strings select the outcome so end-to-end
// runs can drive every branch of the gateway.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"log"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "9090"
	defaultLatencyMs = "50"
)

type verifyRequest struct {
	Proof             string          `json:"proof"`
	SessionTranscript json.RawMessage `json:"sessionTranscript"`
}

type verifyResponse struct {
	Valid      bool           `json:"valid"`
	Predicates map[string]any `json:"predicates,omitempty"`
	Issuer     string         `json:"issuer,omitempty"`
	KeyID      string         `json:"kid,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type certificate struct {
	KeyID      string    `json:"kid"`
	Type       string    `json:"type"`
	Algorithm  string    `json:"alg"`
	PublicKey  string    `json:"publicKey"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
}

type record struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	IssuerLabel  string        `json:"issuer"`
	Certificates []certificate `json:"certificates"`
}

type trustList struct {
	Version       string   `json:"version"`
	Jurisdictions []record `json:"jurisdictions"`
}

var jurisdictions = []struct{ code, name, issuer string }{
	{"US", "United States", "US-DMV"},
	{"CA", "Canada", "CA-MTO"},
	{"MX", "Mexico", "MX-SCT"},
}

var latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

func main() {
	port := getEnv("PORT", defaultPort)

	list, roots, err := buildTrustMaterial(time.Now())
	if err != nil {
		log.Fatalf("generate trust material: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /verify", handleVerify)
	mux.HandleFunc("GET /trust-list", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("GET /roots/{file}", func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSuffix(r.PathValue("file"), ".pem"))
		root, ok := roots[code]
		if !ok {
			sendError(w, "unknown jurisdiction", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(root)
	})

	log.Printf("mock mdoc verifier listening on :%s (latency %dms)", port, latencyMs)
	log.Printf("trust list at /trust-list, roots at /roots/{code}.pem")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "mdoc-verifier"})
}

// handleVerify picks the outcome from the proof prefix:
//
//	REJECT...    422 with valid=false
//	FAIL...      500
//	MINOR...     valid, every age predicate false
//	UNTRUSTED... valid, issuer outside the trust list
//	UNKNOWNKID.. valid, kid not published
//	anything     valid adult from US-DMV
func handleVerify(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Proof == "" || len(req.SessionTranscript) == 0 {
		sendError(w, "proof and sessionTranscript are required", http.StatusBadRequest)
		return
	}

	resp := verifyResponse{
		Valid: true,
		Predicates: map[string]any{
			"org.iso.18013.5.1.age_over_18": true,
			"org.iso.18013.5.1.age_over_21": true,
			"org.iso.18013.5.1.birth_date":  "1990-01-01",
			"notExpired":                    true,
		},
		Issuer: "US-DMV",
		KeyID:  "us-1",
	}
	switch {
	case strings.HasPrefix(req.Proof, "REJECT"):
		writeJSON(w, http.StatusUnprocessableEntity, verifyResponse{Valid: false})
		log.Printf("verify: rejected proof")
		return
	case strings.HasPrefix(req.Proof, "FAIL"):
		sendError(w, "verifier failure", http.StatusInternalServerError)
		return
	case strings.HasPrefix(req.Proof, "MINOR"):
		resp.Predicates["org.iso.18013.5.1.age_over_18"] = false
		resp.Predicates["org.iso.18013.5.1.age_over_21"] = false
	case strings.HasPrefix(req.Proof, "UNTRUSTED"):
		resp.Issuer = "ZZ-DMV"
		resp.KeyID = "zz-1"
	case strings.HasPrefix(req.Proof, "UNKNOWNKID"):
		resp.KeyID = "us-99"
	}
	writeJSON(w, http.StatusOK, resp)
	log.Printf("verify: issuer=%s valid=%v", resp.Issuer, resp.Valid)
}

// buildTrustMaterial creates one self-signed root per jurisdiction and a
// leaf signed by it, published as kid "<code>-1".
func buildTrustMaterial(now time.Time) (trustList, map[string][]byte, error) {
	list := trustList{Version: now.UTC().Format("20060102150405")}
	roots := make(map[string][]byte, len(jurisdictions))

	for i, j := range jurisdictions {
		rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return trustList{}, nil, err
		}
		rootTmpl := &x509.Certificate{
			SerialNumber:          big.NewInt(int64(i*2 + 1)),
			Subject:               pkix.Name{CommonName: j.issuer + " IACA", Country: []string{j.code}},
			NotBefore:             now.Add(-time.Hour),
			NotAfter:              now.AddDate(5, 0, 0),
			KeyUsage:              x509.KeyUsageCertSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
		}
		rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
		if err != nil {
			return trustList{}, nil, err
		}
		rootCert, err := x509.ParseCertificate(rootDER)
		if err != nil {
			return trustList{}, nil, err
		}

		leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return trustList{}, nil, err
		}
		leafTmpl := &x509.Certificate{
			SerialNumber: big.NewInt(int64(i*2 + 2)),
			Subject:      pkix.Name{CommonName: j.issuer + " DS", Country: []string{j.code}},
			NotBefore:    now.Add(-time.Hour),
			NotAfter:     now.AddDate(1, 0, 0),
			KeyUsage:     x509.KeyUsageDigitalSignature,
		}
		leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, rootCert, &leafKey.PublicKey, rootKey)
		if err != nil {
			return trustList{}, nil, err
		}

		roots[j.code] = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})
		list.Jurisdictions = append(list.Jurisdictions, record{
			Code:        j.code,
			Name:        j.name,
			IssuerLabel: j.issuer,
			Certificates: []certificate{{
				KeyID:      strings.ToLower(j.code) + "-1",
				Type:       "x509",
				Algorithm:  "ES256",
				PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER})),
				ValidFrom:  leafTmpl.NotBefore.UTC(),
				ValidUntil: leafTmpl.NotAfter.UTC(),
			}},
		})
	}
	return list, roots, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Error: http.StatusText(code), Message: message})
	log.Printf("error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
