//go:build !linux

package media

// NewSession returns a no-op session where MPRIS is unavailable.
func NewSession() (Session, error) {
	return NewNoOpSession(), nil
}
