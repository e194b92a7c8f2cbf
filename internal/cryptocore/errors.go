package cryptocore

import "errors"

var (
	errAuthFailed = errors.New("cryptocore: message authentication failed")
	errTooShort   = errors.New("cryptocore: ciphertext shorter than nonce")
)
