// Command andromedafs mounts an Andromeda storage backend as a local
// directory tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/cliopts"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/fusebridge"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/platformutil"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/runner"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/stringutil"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/vfs"
)

const (
	exitOK       = 0
	exitBadUsage = 2
	exitBackend  = 3
	exitMount    = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cliopts.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, cliopts.Usage())
		return exitBadUsage
	}
	if opts.ShowHelp {
		fmt.Print(cliopts.Usage())
		return exitOK
	}
	if opts.ShowVersion {
		fmt.Println("andromedafs " + cliopts.Version)
		return exitOK
	}

	debug.SetLevel(debug.Level(opts.DebugLevel))

	r, err := buildRunner(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadUsage
	}

	ctx := context.Background()
	session := backend.NewSession(r, opts.Config)
	if err := authenticate(ctx, session, opts); err != nil {
		fmt.Fprintln(os.Stderr, "authentication failed:", err)
		return exitBackend
	}

	mount, err := vfs.NewMount(ctx, session, opts.Config, rootType(opts), opts.RootID)
	if err != nil {
		session.CloseSession(ctx)
		fmt.Fprintln(os.Stderr, "backend init failed:", err)
		return exitBackend
	}

	// Probe the host volume before mounting; once the FUSE server is up, a
	// statfs on the mount path would be answered by us, not the host.
	if usage, err := platformutil.GetDiskUsage(filepath.Dir(opts.MountPath)); err == nil {
		debug.Infof("main", "mounting at %s (host volume: %s free of %s)",
			opts.MountPath,
			stringutil.FormatByteSize(int64(usage.FreeBytes)),
			stringutil.FormatByteSize(int64(usage.TotalBytes)))
	}

	server, err := fusebridge.Serve(opts.MountPath, mount, opts.FuseOptions)
	if err != nil {
		mount.Shutdown(ctx)
		fmt.Fprintln(os.Stderr, "mount failed:", err)
		return exitMount
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		debug.Infof("main", "signal received, unmounting")
		if err := server.Unmount(); err != nil {
			debug.Errorf("main", "unmount: %v", err)
		}
	}()

	server.Wait()

	teardownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mount.Shutdown(teardownCtx)
	return exitOK
}

func buildRunner(opts *cliopts.Options) (runner.Runner, error) {
	if opts.APIPath != "" {
		return runner.NewCLIRunner(opts.APIPath), nil
	}
	proxy, err := opts.ProxyURL()
	if err != nil {
		return nil, fmt.Errorf("%w: bad proxy: %v", aerrors.ErrBadUsage, err)
	}
	hr := runner.NewHTTPRunner(opts.APIURL, proxy)
	hr.HTTPUser = opts.HTTPUser
	hr.HTTPPass = opts.HTTPPass
	hr.MaxRetries = opts.Config.MaxRetries
	hr.RetryDelay = opts.Config.RetryTime
	return hr, nil
}

// authenticate opens or adopts a session. A two-factor demand is surfaced
// as an interactive prompt, then retried once with the code.
func authenticate(ctx context.Context, session *backend.Session, opts *cliopts.Options) error {
	if opts.SessionID != "" {
		return session.PreAuthenticate(ctx, opts.SessionID, opts.SessionKey)
	}
	if opts.Username == "" {
		return aerrors.ErrAuthRequired
	}
	err := session.Authenticate(ctx, opts.Username, opts.Password, "")
	if errors.Is(err, aerrors.ErrTwoFactorRequired) {
		fmt.Fprint(os.Stderr, "two-factor code: ")
		var code string
		if _, scanErr := fmt.Scanln(&code); scanErr != nil {
			return err
		}
		return session.Authenticate(ctx, opts.Username, opts.Password, code)
	}
	return err
}

func rootType(opts *cliopts.Options) vfs.RootType {
	switch opts.Root {
	case cliopts.RootFolder:
		return vfs.RootFolder
	case cliopts.RootFilesystem:
		return vfs.RootFilesystem
	default:
		return vfs.RootSuperRoot
	}
}
