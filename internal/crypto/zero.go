package crypto

// Zero overwrites b in place. Used for derived key material once it has been
// handed to a cipher or signer.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
