// Package wallet defines the port to the external signing wallet. Paychan
// never holds private keys: it issues signature requests carrying a
// correlation token and consumes whatever comes back. Implementations
// bridge to a mobile wallet round-trip, an HSM, or a test stub.
package wallet

import (
	"context"

	"github.com/google/uuid"
)

// SignatureRequest asks the wallet to authorize one claim.
type SignatureRequest struct {
	// CorrelationToken identifies the claim this signature belongs to.
	CorrelationToken uuid.UUID

	// Payload is the serialized claim to be signed. Opaque to the wallet
	// transport; its format is owned by the network client.
	Payload []byte
}

// Outcome classifies a signer response.
type Outcome int

const (
	OutcomeSigned Outcome = iota
	OutcomeRejected
)

// SignatureResult is the asynchronous answer to a SignatureRequest.
type SignatureResult struct {
	CorrelationToken uuid.UUID
	Outcome          Outcome
	SignedBlob       []byte // Set when Outcome is OutcomeSigned
	Reason           string // Set when Outcome is OutcomeRejected
}

// Signer is the external wallet collaborator.
//
// RequestSignature returns immediately with a channel on which exactly one
// result will be delivered, or none at all if the wallet never answers;
// the caller owns the timeout. Implementations must not block in
// RequestSignature itself.
type Signer interface {
	RequestSignature(ctx context.Context, req SignatureRequest) (<-chan SignatureResult, error)
}
