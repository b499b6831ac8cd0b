package service

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mdlgate/internal/platform/tracer"
	"mdlgate/internal/trust/models"
	"mdlgate/pkg/requestcontext"
)

// VerifyIssuer pins an issuer label and key id against the trust list.
// Checks run in order: label shape, allow-list, known jurisdiction, known
// kid, validity window and, with root pinning, root availability and chain.
// The only error is an unavailable trust list; every other outcome is a
// decision.
func (s *Service) VerifyIssuer(ctx context.Context, issuerLabel, kid string) (models.IssuerDecision, error) {
	jurisdiction := models.JurisdictionOf(issuerLabel)
	decision := models.IssuerDecision{Jurisdiction: jurisdiction}

	if jurisdiction == "" || strings.TrimSpace(kid) == "" {
		return s.reject(ctx, decision, models.ReasonMalformedIssuer), nil
	}
	if !s.IsAccepted(jurisdiction) {
		return s.reject(ctx, decision, models.ReasonJurisdictionNotAccepted), nil
	}

	snap, err := s.Fetch(ctx, false)
	if err != nil {
		return models.IssuerDecision{}, err
	}
	decision.Stale = snap.Stale

	rec, ok := snap.Record(jurisdiction)
	if !ok {
		return s.reject(ctx, decision, models.ReasonUnknownJurisdiction), nil
	}
	cert, ok := rec.Certificate(kid)
	if !ok {
		return s.reject(ctx, decision, models.ReasonUnknownKeyID), nil
	}
	decision.Certificate = &cert

	now := requestcontext.Now(ctx)
	if now.Before(cert.ValidFrom) {
		return s.reject(ctx, decision, models.ReasonNotYetValid), nil
	}
	if now.After(cert.ValidUntil) {
		return s.reject(ctx, decision, models.ReasonExpired), nil
	}

	if s.requireRoots {
		root := s.rootFor(ctx, jurisdiction)
		if !root.Available {
			return s.reject(ctx, decision, models.ReasonRootUnavailable), nil
		}
		if !chainsTo(cert, root.Certificate) {
			return s.reject(ctx, decision, models.ReasonNotChained), nil
		}
	}

	decision.Accepted = true
	decision.Reason = models.ReasonAccepted
	s.metrics.IncrementIssuerDecision(models.ReasonAccepted)
	return decision, nil
}

func (s *Service) reject(ctx context.Context, d models.IssuerDecision, reason string) models.IssuerDecision {
	d.Accepted = false
	d.Reason = reason
	s.metrics.IncrementIssuerDecision(reason)
	s.logger.WarnContext(ctx, "issuer rejected",
		"jurisdiction", d.Jurisdiction,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	return d
}

// chainsTo checks the signature of a certificate published as X.509 PEM
// against the jurisdiction root. Bare key material has no chain to check.
func chainsTo(cert models.Certificate, root *x509.Certificate) bool {
	block, _ := pem.Decode([]byte(cert.PublicKey))
	if block == nil || block.Type != "CERTIFICATE" {
		return true
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil || root == nil {
		return false
	}
	return leaf.CheckSignatureFrom(root) == nil
}

// refreshRoots downloads the root of every accepted jurisdiction. Failures
// only mark the jurisdiction unavailable.
func (s *Service) refreshRoots(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rootFetchLimit)
	for _, code := range s.accepted {
		g.Go(func() error {
			_ = s.rootLocks.Do(code, func() error {
				s.downloadRoot(gctx, code)
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.SetRootsUnavailable(s.unavailableRoots())
}

// rootFor returns the root for code, retrying a missing or failed download
// at most once per backoff window. Concurrent callers for the same
// jurisdiction wait on one download.
func (s *Service) rootFor(ctx context.Context, code string) models.Root {
	if e, ok := s.getRoot(code); ok && e.root.Available {
		return e.root
	}
	if s.roots == nil {
		return models.Root{Code: code}
	}

	var root models.Root
	_ = s.rootLocks.Do(code, func() error {
		now := requestcontext.Now(ctx)
		if e, ok := s.getRoot(code); ok && (e.root.Available || now.Sub(e.checkedAt) < s.retryBackoff) {
			root = e.root
			return nil
		}
		root = s.downloadRoot(ctx, code)
		return nil
	})
	s.metrics.SetRootsUnavailable(s.unavailableRoots())
	return root
}

// downloadRoot must be called with the jurisdiction lock held.
func (s *Service) downloadRoot(ctx context.Context, code string) models.Root {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRootFetch, tracer.String(tracer.AttrJurisdiction, code))
	cert, err := s.roots.FetchRoot(ctx, code)
	span.End(err)

	root := models.Root{Code: code, Available: err == nil && cert != nil, Certificate: cert}
	if !root.Available {
		s.logger.WarnContext(ctx, "root certificate unavailable; jurisdiction untrusted under root pinning",
			"jurisdiction", code,
			"error", err,
		)
	}
	s.putRoot(root, requestcontext.Now(ctx))
	return root
}

func (s *Service) getRoot(code string) (rootEntry, bool) {
	s.rootsMu.RLock()
	defer s.rootsMu.RUnlock()
	e, ok := s.rootTable[code]
	return e, ok
}

func (s *Service) putRoot(root models.Root, now time.Time) {
	s.rootsMu.Lock()
	defer s.rootsMu.Unlock()
	s.rootTable[root.Code] = rootEntry{root: root, checkedAt: now}
}

func (s *Service) rootsView() map[string]models.Root {
	s.rootsMu.RLock()
	defer s.rootsMu.RUnlock()
	out := make(map[string]models.Root, len(s.rootTable))
	for code, e := range s.rootTable {
		out[code] = e.root
	}
	return out
}

func (s *Service) unavailableRoots() int {
	s.rootsMu.RLock()
	defer s.rootsMu.RUnlock()
	n := 0
	for _, code := range s.accepted {
		if e, ok := s.rootTable[code]; !ok || !e.root.Available {
			n++
		}
	}
	return n
}
