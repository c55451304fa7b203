// Package cliopts parses the command-line surface of the mount client. It
// translates flags into a config.Config plus the transport/auth/mount
// settings the entry point needs, and owns usage/version emission.
package cliopts

import (
	"fmt"
	"net/url"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/platformutil"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/stringutil"
)

// Version is the client version string printed by -V/--version.
const Version = "1.0.0"

// RootSelector mirrors the --folder/--filesystem choice.
type RootSelector int

const (
	RootSuperRoot RootSelector = iota
	RootFilesystem
	RootFolder
)

// Options is everything the entry point needs to bring up a mount.
type Options struct {
	ShowHelp    bool
	ShowVersion bool

	DebugLevel int

	// Transport: exactly one of APIURL/APIPath must be set.
	APIURL  string
	APIPath string

	Username   string
	Password   string
	SessionID  string
	SessionKey string

	Root   RootSelector
	RootID string

	MountPath   string
	FuseOptions []string

	HTTPUser   string
	HTTPPass   string
	ProxyHost  string
	ProxyPort  int
	HProxyUser string
	HProxyPass string

	Config config.Config
}

// ProxyURL assembles the configured HTTP proxy, or nil if none.
func (o *Options) ProxyURL() (*url.URL, error) {
	if o.ProxyHost == "" {
		return nil, nil
	}
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", o.ProxyHost, o.ProxyPort)}
	if o.HProxyUser != "" {
		u.User = url.UserPassword(o.HProxyUser, o.HProxyPass)
	}
	return u, nil
}

// NewFlagSet builds the flag set; split out so tests and Usage share it.
func NewFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("andromedafs", flag.ContinueOnError)
	fs.BoolP("help", "h", false, "print usage and exit")
	fs.BoolP("version", "V", false, "print version and exit")

	fs.IntP("debug", "d", 0, "debug level (0..5)")
	fs.Lookup("debug").NoOptDefVal = "3"

	fs.StringP("apiurl", "s", "", "remote HTTP endpoint (host/path)")
	fs.StringP("apipath", "p", "", "local script endpoint")

	fs.StringP("username", "u", "", "account username")
	fs.String("password", "", "account password")
	fs.String("sessionid", "", "pre-existing session ID")
	fs.String("sessionkey", "", "pre-existing session key")

	fs.String("folder", "", "mount a folder by ID")
	fs.String("filesystem", "", "mount a filesystem by ID")
	fs.Lookup("folder").NoOptDefVal = " "
	fs.Lookup("filesystem").NoOptDefVal = " "

	fs.StringP("mount", "m", "", "local mount directory")
	fs.StringArrayP("option", "o", nil, "option forwarded to the host bridge")
	fs.BoolP("read-only", "r", false, "mount read-only")

	fs.String("pagesize", "128K", "page size (N[KMGT])")
	fs.Int("dir-refresh", 15, "folder refresh TTL in seconds")
	fs.Int("read-ahead", 1000, "read-ahead window in milliseconds")
	fs.Int("read-max-cache-frac", 4, "fraction of the cache budget one read may use")
	fs.String("read-ahead-buffer", "4M", "read-ahead buffer size (N[KMGT])")
	fs.String("cachemode", "normal", "cache mode: none|memory|normal")
	fs.Int("backend-runners", 4, "parallel runner pool size")
	fs.Int("max-retries", 0, "HTTP retry attempts on connection errors")
	fs.Int("retry-time", 5, "delay between HTTP retries in seconds")

	fs.String("http-user", "", "HTTP basic-auth user")
	fs.String("http-pass", "", "HTTP basic-auth password")
	fs.String("proxy-host", "", "HTTP proxy host")
	fs.Int("proxy-port", 8080, "HTTP proxy port")
	fs.String("hproxy-user", "", "HTTP proxy user")
	fs.String("hproxy-pass", "", "HTTP proxy password")

	fs.Bool("no-chmod", false, "accept chmod as a silent no-op")
	fs.Bool("no-chown", false, "accept chown as a silent no-op")
	return fs
}

// Parse parses args (not including argv[0]). Any unknown flag or bad value
// returns an error wrapping ErrBadUsage, which the entry point maps to
// exit code 2.
func Parse(args []string) (*Options, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", aerrors.ErrBadUsage, err)
	}
	if len(fs.Args()) > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", aerrors.ErrBadUsage, fs.Args()[0])
	}

	o := &Options{Config: config.Default()}
	o.ShowHelp, _ = fs.GetBool("help")
	o.ShowVersion, _ = fs.GetBool("version")
	if o.ShowHelp || o.ShowVersion {
		return o, nil
	}

	o.DebugLevel, _ = fs.GetInt("debug")
	if o.DebugLevel < 0 || o.DebugLevel > 5 {
		return nil, fmt.Errorf("%w: debug level %d out of range", aerrors.ErrBadUsage, o.DebugLevel)
	}

	o.APIURL, _ = fs.GetString("apiurl")
	o.APIPath, _ = fs.GetString("apipath")
	if (o.APIURL == "") == (o.APIPath == "") {
		return nil, fmt.Errorf("%w: exactly one of --apiurl/--apipath is required", aerrors.ErrBadUsage)
	}
	if o.APIPath != "" {
		expanded, err := platformutil.AbsExpand(o.APIPath)
		if err != nil {
			return nil, fmt.Errorf("%w: bad --apipath: %v", aerrors.ErrBadUsage, err)
		}
		o.APIPath = expanded
	}

	o.Username, _ = fs.GetString("username")
	o.Password, _ = fs.GetString("password")
	o.SessionID, _ = fs.GetString("sessionid")
	o.SessionKey, _ = fs.GetString("sessionkey")

	folderID, _ := fs.GetString("folder")
	fsID, _ := fs.GetString("filesystem")
	switch {
	case fs.Changed("folder") && fs.Changed("filesystem"):
		return nil, fmt.Errorf("%w: --folder and --filesystem are mutually exclusive", aerrors.ErrBadUsage)
	case fs.Changed("folder"):
		o.Root = RootFolder
		o.RootID = trimOptional(folderID)
	case fs.Changed("filesystem"):
		o.Root = RootFilesystem
		o.RootID = trimOptional(fsID)
	default:
		o.Root = RootSuperRoot
	}

	o.MountPath, _ = fs.GetString("mount")
	if o.MountPath == "" {
		return nil, fmt.Errorf("%w: --mount is required", aerrors.ErrBadUsage)
	}
	expanded, err := platformutil.AbsExpand(o.MountPath)
	if err != nil {
		return nil, fmt.Errorf("%w: bad --mount: %v", aerrors.ErrBadUsage, err)
	}
	o.MountPath = expanded
	o.FuseOptions, _ = fs.GetStringArray("option")

	o.Config.ReadOnly, _ = fs.GetBool("read-only")

	pageSizeStr, _ := fs.GetString("pagesize")
	pageSize, err := stringutil.ParseByteSize(pageSizeStr)
	if err != nil || pageSize == 0 {
		return nil, fmt.Errorf("%w: bad --pagesize %q", aerrors.ErrBadUsage, pageSizeStr)
	}
	o.Config.PageSize = pageSize

	dirRefresh, _ := fs.GetInt("dir-refresh")
	o.Config.DirRefresh = time.Duration(dirRefresh) * time.Second
	readAhead, _ := fs.GetInt("read-ahead")
	o.Config.ReadAheadTime = time.Duration(readAhead) * time.Millisecond
	o.Config.ReadMaxCacheFrac, _ = fs.GetInt("read-max-cache-frac")
	bufStr, _ := fs.GetString("read-ahead-buffer")
	buf, err := stringutil.ParseByteSize(bufStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad --read-ahead-buffer %q", aerrors.ErrBadUsage, bufStr)
	}
	o.Config.ReadAheadBuffer = buf

	modeStr, _ := fs.GetString("cachemode")
	mode, ok := config.ParseCacheMode(modeStr)
	if !ok {
		return nil, fmt.Errorf("%w: bad --cachemode %q", aerrors.ErrBadUsage, modeStr)
	}
	o.Config.CacheMode = mode

	o.Config.BackendRunners, _ = fs.GetInt("backend-runners")
	o.Config.MaxRetries, _ = fs.GetInt("max-retries")
	retryTime, _ := fs.GetInt("retry-time")
	o.Config.RetryTime = time.Duration(retryTime) * time.Second
	o.Config.NoChmod, _ = fs.GetBool("no-chmod")
	o.Config.NoChown, _ = fs.GetBool("no-chown")

	o.HTTPUser, _ = fs.GetString("http-user")
	o.HTTPPass, _ = fs.GetString("http-pass")
	o.ProxyHost, _ = fs.GetString("proxy-host")
	o.ProxyPort, _ = fs.GetInt("proxy-port")
	o.HProxyUser, _ = fs.GetString("hproxy-user")
	o.HProxyPass, _ = fs.GetString("hproxy-pass")

	return o, nil
}

// trimOptional maps the "flag given with no value" sentinel back to "".
func trimOptional(v string) string {
	if v == " " {
		return ""
	}
	return v
}

// Usage renders the flag help text.
func Usage() string {
	return "usage: andromedafs [flags]\n" + NewFlagSet().FlagUsages()
}
