package mintauth

import "encoding/hex"

var (
	noncePrefix      = []byte("mint/nonce/")
	usedDigestPrefix = []byte("mint/used/")
	authorityKey     = []byte("mint/authority")
	ledgerPrefix     = []byte("mint/ledger/")
)

func nonceKeyBytes(addr []byte) []byte {
	buf := make([]byte, len(noncePrefix)+len(addr))
	copy(buf, noncePrefix)
	copy(buf[len(noncePrefix):], addr)
	return buf
}

func usedDigestKeyBytes(digest []byte) []byte {
	encoded := hex.EncodeToString(digest)
	buf := make([]byte, len(usedDigestPrefix)+len(encoded))
	copy(buf, usedDigestPrefix)
	copy(buf[len(usedDigestPrefix):], encoded)
	return buf
}

func ledgerKeyBytes(addr []byte) []byte {
	buf := make([]byte, len(ledgerPrefix)+len(addr))
	copy(buf, ledgerPrefix)
	copy(buf[len(ledgerPrefix):], addr)
	return buf
}
