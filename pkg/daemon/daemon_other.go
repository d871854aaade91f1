//go:build !unix

package daemon

func Detach(Options) (int, error) {
	return 0, ErrUnsupported
}

func Settle() int { return 0 }
