package wire

import "strconv"

// AuthArgs identifies the client to the API during login.
type AuthArgs struct {
	Username      string
	Password      string
	Client        string
	ClientVersion int
	ProtoVersion  int
}

// Auth builds the login command. The reply installs the session key.
func Auth(a AuthArgs) *Command {
	return &Command{
		Name: CmdAuth,
		Args: map[string]string{
			"user":      a.Username,
			"pass":      a.Password,
			"protover":  strconv.Itoa(a.ProtoVersion),
			"client":    a.Client,
			"clientver": strconv.Itoa(a.ClientVersion),
			"nat":       "1",
			"comp":      "1",
			"enc":       "UTF8",
		},
	}
}

// Logout builds the session-ending command.
func Logout() *Command {
	return &Command{Name: CmdLogout}
}

// Ping builds a keepalive; it is valid without a session.
func Ping() *Command {
	return &Command{Name: CmdPing, Args: map[string]string{"nat": "1"}}
}

// FileByHash builds a FILE lookup by size and ed2k hash. fmask and amask
// select which file and anime fields the reply dataline carries.
func FileByHash(size int64, ed2k, fmask, amask string) *Command {
	return &Command{
		Name: "FILE",
		Args: map[string]string{
			"size":  strconv.FormatInt(size, 10),
			"ed2k":  ed2k,
			"fmask": fmask,
			"amask": amask,
		},
	}
}

// AnimeByID builds an ANIME lookup by AniDB anime id.
func AnimeByID(aid int) *Command {
	return &Command{Name: "ANIME", Args: map[string]string{"aid": strconv.Itoa(aid)}}
}
