// Package bytesutil holds small byte-slice helpers used by the assembler's
// tests; production code does not call them.
package bytesutil

// IsFilledWith reports whether every byte of b equals v. Used by tests to
// confirm that padding and erased regions carry their declared fill byte.
func IsFilledWith(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}
