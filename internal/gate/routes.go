package gate

import "strings"

// Class is the authorization class of a path.
type Class string

const (
	ClassPublic    Class = "public"
	ClassProtected Class = "protected"
	ClassGuestOnly Class = "guestOnly"
)

// DefaultLoginPath is where anonymous callers of protected paths are sent.
const DefaultLoginPath = "/login"

// Routes lists path prefixes per class. A prefix "/a" matches "/a" and
// anything under "/a/", never "/ab". Paths matching no list are public.
type Routes struct {
	Protected []string `mapstructure:"protected" yaml:"protected"`
	GuestOnly []string `mapstructure:"guest_only" yaml:"guest_only"`
	LoginPath string   `mapstructure:"login_path" yaml:"login_path"`
}

// DefaultRoutes returns the route table for the bulkmail API. Everything
// that spends the stored credential or reveals recipients needs a session;
// the consent flow, status and logout stay open.
func DefaultRoutes() Routes {
	return Routes{
		Protected: []string{
			"/",
			"/send",
			"/upload",
			"/logs",
			"/auth/refresh",
		},
		GuestOnly: []string{
			"/login",
		},
		LoginPath: DefaultLoginPath,
	}
}

// Classify returns the class of path. Guest-only wins over protected.
func (r Routes) Classify(path string) Class {
	switch {
	case matchAny(path, r.GuestOnly):
		return ClassGuestOnly
	case matchAny(path, r.Protected):
		return ClassProtected
	default:
		return ClassPublic
	}
}

func (r Routes) loginPath() string {
	if r.LoginPath == "" {
		return DefaultLoginPath
	}
	return r.LoginPath
}

func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
