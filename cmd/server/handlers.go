package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"time"

	"github.com/TrentShailer/api-helper/apikey"
	"github.com/TrentShailer/api-helper/b64"
	"github.com/TrentShailer/api-helper/postgres"
	"github.com/TrentShailer/api-helper/problem"
	"github.com/TrentShailer/api-helper/token"
	"github.com/TrentShailer/api-helper/webauthn"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	SigningKey  *token.SigningKey
	KeySet      *token.KeySet
	APIKeys     *apikey.Validator
	Extractor   *token.Extractor
	Revocations *postgres.RevocationStore
	Challenges  *postgres.ChallengeStore
	PublicKeys  *postgres.PublicKeyStore

	RelyingParty   string
	ceremonyOrigin string
}

// respond writes a JSON success body. The body is encoded before any
// of the response is written, so an encoding failure still surfaces as
// a clean 500 through the problem envelope.
func respond(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		problem.LogInternal(err, "failed to encode response body").Write(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// GetKeySet serves the persisted key set verifiers fetch.
func (s *Server) GetKeySet(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.KeySet)
}

// GetRevokedToken answers revocation lookups: 200 when the token has
// been revoked, 404 when it has not.
func (s *Server) GetRevokedToken(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")

	revoked, err := s.Revocations.IsRevoked(r.Context(), tid)
	if err != nil {
		problem.LogInternal(err, "failed to check revocation").Write(w)
		return
	}

	if !revoked {
		problem.NotFound().Write(w)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type issueTokenRequest struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Act     string `json:"act,omitempty"`
}

type issueTokenResponse struct {
	Token string `json:"token"`
	Tid   string `json:"tid"`
}

// IssueToken signs a token for an internal caller.
func (s *Server) IssueToken(w http.ResponseWriter, r *http.Request) {
	var request issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		problem.BadRequest(problem.New("$", "The request body is not valid JSON.")).Write(w)
		return
	}
	if request.Subject == "" {
		problem.BadRequest(problem.New("$.subject", "A subject is required.")).Write(w)
		return
	}

	var typ token.TokenType
	switch token.TokenKind(request.Kind) {
	case token.TokenKindCommon, "":
		typ = token.Common()
	case token.TokenKindConsent:
		if request.Act == "" {
			problem.BadRequest(problem.New("$.act", "Consent tokens require an action.")).Write(w)
			return
		}
		typ = token.Consent(request.Act)
	case token.TokenKindProvisioning:
		typ = token.Provisioning()
	default:
		problem.BadRequest(problem.New("$.kind", "The token kind is not recognized.")).Write(w)
		return
	}

	issued, signature, err := s.SigningKey.Issue(request.Subject, typ)
	if err != nil {
		problem.LogInternal(err, "failed to issue token").Write(w)
		return
	}

	compact, err := issued.Compact(signature)
	if err != nil {
		problem.LogInternal(err, "failed to serialize token").Write(w)
		return
	}

	log.Info().
		Str("subject", request.Subject).
		Str("tid", issued.Claims.Tid).
		Str("kind", string(issued.Claims.Typ.Kind)).
		Msg("issued token")

	respond(w, http.StatusOK, issueTokenResponse{Token: compact, Tid: issued.Claims.Tid})
}

// RevokeToken records a token ID as revoked.
func (s *Server) RevokeToken(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")

	// Revocation records only need to outlive the longest token TTL.
	expires := time.Now().Add(token.Common().TTL())
	if err := s.Revocations.Revoke(r.Context(), tid, expires); err != nil {
		problem.LogInternal(err, "failed to revoke token").Write(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Subject   string          `json:"subject"`
	Tid       string          `json:"tid"`
	Kind      token.TokenKind `json:"kind"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// GetMe echoes the verified token back to its bearer.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	verified, ok := token.FromContext(r.Context())
	if !ok {
		problem.Unauthenticated().Write(w)
		return
	}

	respond(w, http.StatusOK, meResponse{
		Subject:   verified.Claims.Sub,
		Tid:       verified.Claims.Tid,
		Kind:      verified.Claims.Typ.Kind,
		ExpiresAt: verified.Claims.ExpiresAt(),
	})
}

type createChallengeRequest struct {
	IdentityID b64.Bytes `json:"identityId,omitempty"`
}

type createChallengeResponse struct {
	Challenge b64.Bytes `json:"challenge"`
	Expires   time.Time `json:"expires"`
}

// CreateChallenge issues a one-shot WebAuthn challenge.
func (s *Server) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var request createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		problem.BadRequest(problem.New("$", "The request body is not valid JSON.")).Write(w)
		return
	}

	value := make([]byte, 32)
	if _, err := rand.Read(value); err != nil {
		problem.LogInternal(err, "failed to generate challenge").Write(w)
		return
	}

	now := time.Now()
	challenge := &webauthn.Challenge{
		Challenge:  value,
		IdentityID: request.IdentityID,
		Issued:     now,
		Expires:    now.Add(5 * time.Minute),
		Origin:     s.ceremonyOrigin,
	}

	if err := s.Challenges.SaveChallenge(r.Context(), challenge); err != nil {
		problem.LogInternal(err, "failed to save challenge").Write(w)
		return
	}

	respond(w, http.StatusOK, createChallengeResponse{Challenge: value, Expires: challenge.Expires})
}

type registerRequest struct {
	Bearer      b64.Bytes                     `json:"bearer"`
	DisplayName string                        `json:"displayName"`
	Credential  *webauthn.PublicKeyCredential `json:"credential"`
}

// Register verifies a registration ceremony and persists the new
// credential.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var request registerRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		problem.BadRequest(problem.New("$", "The request body is not valid JSON.")).Write(w)
		return
	}
	if request.Credential == nil || request.Credential.Response.Attestation == nil {
		problem.BadRequest(problem.New("$.credential", "An attestation credential is required.")).Write(w)
		return
	}

	verified, err := webauthn.Verify(r.Context(), s.verifier(), request.Credential, request.Bearer)
	if err != nil {
		problem.LogInternal(err, "registration verification failed").Write(w)
		return
	}
	if !verified {
		problem.Unauthenticated().Write(w)
		return
	}

	attestation := request.Credential.Response.Attestation
	key := &webauthn.PersistedPublicKey{
		RawID:              request.Credential.RawID,
		IdentityID:         request.Bearer,
		DisplayName:        request.DisplayName,
		PublicKey:          attestation.PublicKey,
		PublicKeyAlgorithm: attestation.PublicKeyAlgorithm,
		Transports:         attestation.Transports,
		SignatureCounter:   int64(attestation.AuthenticatorData.SignatureCounter),
		Created:            time.Now(),
	}

	if err := s.PublicKeys.SavePublicKey(r.Context(), key); err != nil {
		problem.LogInternal(err, "failed to persist credential").Write(w)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type assertRequest struct {
	Credential *webauthn.PublicKeyCredential `json:"credential"`
}

type assertResponse struct {
	Token string `json:"token"`
}

// Assert verifies an assertion ceremony and issues a session token for
// the asserted identity.
func (s *Server) Assert(w http.ResponseWriter, r *http.Request) {
	var request assertRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		problem.BadRequest(problem.New("$", "The request body is not valid JSON.")).Write(w)
		return
	}
	if request.Credential == nil || request.Credential.Response.Assertion == nil {
		problem.BadRequest(problem.New("$.credential", "An assertion credential is required.")).Write(w)
		return
	}

	verified, err := webauthn.Verify(r.Context(), s.verifier(), request.Credential, nil)
	if err != nil {
		problem.LogInternal(err, "assertion verification failed").Write(w)
		return
	}
	if !verified {
		problem.Unauthenticated().Write(w)
		return
	}

	assertion := request.Credential.Response.Assertion

	persisted, err := s.PublicKeys.GetPublicKey(r.Context(), request.Credential.RawID)
	if err != nil {
		problem.LogInternal(err, "failed to load credential after assertion").Write(w)
		return
	}
	if persisted == nil {
		problem.Unauthenticated().Write(w)
		return
	}

	counter := int64(assertion.AuthenticatorData.SignatureCounter)
	if err := s.PublicKeys.TouchPublicKey(r.Context(), request.Credential.RawID, counter); err != nil {
		log.Warn().Err(err).Msg("failed to update signature counter")
	}

	subject := b64.Encode(persisted.IdentityID)
	issued, signature, err := s.SigningKey.Issue(subject, token.Common())
	if err != nil {
		problem.LogInternal(err, "failed to issue session token").Write(w)
		return
	}

	compact, err := issued.Compact(signature)
	if err != nil {
		problem.LogInternal(err, "failed to serialize session token").Write(w)
		return
	}

	respond(w, http.StatusOK, assertResponse{Token: compact})
}

// verifier adapts the server's stores to the webauthn.Verifier
// capability set.
func (s *Server) verifier() webauthn.Verifier {
	return &storeVerifier{
		challenges:     s.Challenges,
		publicKeys:     s.PublicKeys,
		relyingPartyID: s.RelyingParty,
	}
}

type storeVerifier struct {
	challenges     *postgres.ChallengeStore
	publicKeys     *postgres.PublicKeyStore
	relyingPartyID string
}

func (v *storeVerifier) ConsumeChallenge(ctx context.Context, challenge []byte) (*webauthn.Challenge, error) {
	return v.challenges.ConsumeChallenge(ctx, challenge)
}

func (v *storeVerifier) GetPublicKey(ctx context.Context, rawID []byte) (*webauthn.PersistedPublicKey, error) {
	return v.publicKeys.GetPublicKey(ctx, rawID)
}

func (v *storeVerifier) RelyingPartyID() string {
	return v.relyingPartyID
}
