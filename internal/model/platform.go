package model

import "runtime"

// Platform describes the Node.js runtime the bundle targets. Native binding
// locators use it to expand paths such as `lib/binding/{node_abi}-{platform}-{arch}`.
type Platform struct {
	OS          string `yaml:"os"`
	Arch        string `yaml:"arch"`
	NodeVersion string `yaml:"node_version"`
	NodeABI     string `yaml:"node_abi"`
	NapiVersion int    `yaml:"napi_version"`
	Libc        string `yaml:"libc"`
}

const (
	defaultNodeVersion = "18.17.0"
	defaultNodeABI     = "108"
	defaultNapiVersion = 9
)

// HostPlatform maps the Go runtime's OS/arch onto Node's naming.
func HostPlatform() Platform {
	p := Platform{
		OS:          NodeOS(runtime.GOOS),
		Arch:        NodeArch(runtime.GOARCH),
		NodeVersion: defaultNodeVersion,
		NodeABI:     defaultNodeABI,
		NapiVersion: defaultNapiVersion,
		Libc:        "unknown",
	}

	if p.OS == "linux" {
		p.Libc = "glibc"
	}

	return p
}

// NodeOS converts a GOOS value to process.platform.
func NodeOS(goos string) string {
	switch goos {
	case "windows":
		return "win32"
	default:
		return goos
	}
}

// NodeArch converts a GOARCH value to process.arch.
func NodeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	case "arm":
		return "arm"
	case "arm64":
		return "arm64"
	default:
		return goarch
	}
}
