package mintauth

import "errors"

var (
	// ErrExpired indicates the instruction deadline has elapsed.
	ErrExpired = errors.New("mintauth: instruction expired")
	// ErrInvalidNonce indicates the instruction nonce does not exactly match
	// the recipient's next expected nonce.
	ErrInvalidNonce = errors.New("mintauth: invalid nonce")
	// ErrInvalidSignature indicates the recovered signer is not the configured
	// mint authority.
	ErrInvalidSignature = errors.New("mintauth: invalid signature")
	// ErrSignatureUsed indicates the instruction digest is already present in
	// the replay cache.
	ErrSignatureUsed = errors.New("mintauth: signature already used")
	// ErrInvalidChainID indicates the instruction targets a different
	// deployment.
	ErrInvalidChainID = errors.New("mintauth: invalid chain id")
	// ErrNoAuthority indicates no trusted signer has been configured yet.
	ErrNoAuthority = errors.New("mintauth: authority not configured")
	// ErrInvalidPayload indicates a structurally invalid instruction.
	ErrInvalidPayload = errors.New("mintauth: invalid payload")
)
