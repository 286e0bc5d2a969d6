package deb

import (
	"fmt"
	"runtime"
)

// Arch is a Debian architecture tag, restricted to the closed set actually
// carried by the repositories this library pulls from. Unlike Metadata's
// free-form Architecture string (kept for round-tripping whatever a real
// control file says), Arch is used wherever code makes a decision based on
// architecture — selecting which Packages* variant to fetch, filtering a
// Release file's Architectures list — so an unrecognized value should fail
// loudly rather than silently match nothing.
type Arch string

const (
	ArchAll     Arch = "all"
	ArchAmd64   Arch = "amd64"
	ArchArm64   Arch = "arm64"
	ArchArmhf   Arch = "armhf"
	ArchArmel   Arch = "armel"
	ArchI386    Arch = "i386"
	ArchMips64  Arch = "mips64el"
	ArchPpc64el Arch = "ppc64el"
	ArchRiscv64 Arch = "riscv64"
	ArchS390x   Arch = "s390x"
)

// ErrUnsupportedArchitecture is returned by ParseArch for any value outside
// the closed set above.
var ErrUnsupportedArchitecture = fmt.Errorf("deb: unsupported architecture")

// ParseArch validates s against the closed architecture set.
func ParseArch(s string) (Arch, error) {
	switch Arch(s) {
	case ArchAll, ArchAmd64, ArchArm64, ArchArmhf, ArchArmel, ArchI386,
		ArchMips64, ArchPpc64el, ArchRiscv64, ArchS390x:
		return Arch(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedArchitecture, s)
	}
}

func (a Arch) String() string { return string(a) }

// goarchToDebian maps runtime.GOARCH values to their Debian architecture tag.
var goarchToDebian = map[string]Arch{
	"amd64":    ArchAmd64,
	"arm64":    ArchArm64,
	"arm":      ArchArmhf,
	"386":      ArchI386,
	"mips64le": ArchMips64,
	"ppc64le":  ArchPpc64el,
	"riscv64":  ArchRiscv64,
	"s390x":    ArchS390x,
}

// NativeArch returns the Debian architecture tag for the platform this binary
// was built for.
func NativeArch() (Arch, error) {
	a, ok := goarchToDebian[runtime.GOARCH]
	if !ok {
		return "", fmt.Errorf("%w: no Debian architecture tag for GOARCH %q", ErrUnsupportedArchitecture, runtime.GOARCH)
	}
	return a, nil
}
