// Package backend implements the typed API surface of the Andromeda
// server: authentication, config/limits, folder/file CRUD, and byte-range
// read/write/truncate, layered over a runner.Runner.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/crypto"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/runner"
)

// Session wraps a runner.Runner with typed Andromeda operations and owns
// the session credentials.
type Session struct {
	r   runner.Runner
	cfg config.Config

	mu             sync.Mutex
	sessionID      string
	sessionKey     *crypto.SecureBuffer
	username       string
	accountID      string
	createdSession bool

	mem *memoryStore
}

// NewSession constructs a Session over r. If cfg.CacheMode is
// CacheModeMemory, mutating operations become synthetic no-ops.
func NewSession(r runner.Runner, cfg config.Config) *Session {
	s := &Session{r: r, cfg: cfg}
	if cfg.CacheMode == config.CacheModeMemory {
		s.mem = newMemoryStore()
	}
	return s
}

func (s *Session) isMemoryMode() bool { return s.mem != nil }

// injectAuth adds the session credentials to params: sessionid/sessionkey
// when a session is open, falling back to auth_sudouser if only a username
// is set (pre-authenticated sudo mode).
func (s *Session) injectAuth(params map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" && s.sessionKey != nil {
		params["auth_sessionid"] = s.sessionID
		params["auth_sessionkey"] = string(s.sessionKey.Bytes())
	} else if s.username != "" {
		params["auth_sudouser"] = s.username
	}
}

// call performs one JSON-enveloped API call, injecting auth and classifying
// any {ok:false} response per the classification table.
func (s *Session) call(ctx context.Context, app, action string, params map[string]string, files map[string]runner.InputFile) (Envelope, error) {
	if params == nil {
		params = map[string]string{}
	}
	s.injectAuth(params)

	body, err := s.r.RunAction(ctx, runner.Input{App: app, Action: action, Params: params, Files: files})
	if err != nil {
		return Envelope{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	if !env.OK {
		return Envelope{}, classify(env.Code, env.Message)
	}
	debug.Debugf("backend", "%s.%s ok", app, action)
	return env, nil
}

// mutate is the memory-mode interception point: mutating operations never
// reach the runner when cfg.CacheMode is MEMORY.
func (s *Session) mutate(ctx context.Context, app, action string, params map[string]string, files map[string]runner.InputFile) (Envelope, bool, error) {
	if s.isMemoryMode() {
		s.mem.record(action)
		return Envelope{}, true, nil
	}
	env, err := s.call(ctx, app, action, params, files)
	return env, false, err
}

// --- Auth ---

// Authenticate opens a new session for user/pass, optionally supplying a
// two-factor code. If the server demands one and twofactor is empty, it
// returns aerrors.ErrTwoFactorRequired and the caller should retry with a
// code.
func (s *Session) Authenticate(ctx context.Context, user, pass, twofactor string) error {
	params := map[string]string{"username": user, "password": pass}
	if twofactor != "" {
		params["twofactor"] = twofactor
	}
	env, err := s.call(ctx, "accounts", "createsession", params, nil)
	if err != nil {
		return err
	}
	var sess SessionJSON
	if err := json.Unmarshal(env.AppData, &sess); err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	s.mu.Lock()
	s.sessionID = sess.SessionID
	s.setSessionKey(sess.SessionKey)
	s.username = sess.Username
	if s.username == "" {
		s.username = user
	}
	s.accountID = sess.AccountID
	s.createdSession = true
	s.mu.Unlock()
	return nil
}

// PreAuthenticate adopts an existing session ID/key and fetches the
// account info in the same call.
func (s *Session) PreAuthenticate(ctx context.Context, sid, skey string) error {
	s.mu.Lock()
	s.sessionID = sid
	s.setSessionKey(skey)
	s.createdSession = false
	s.mu.Unlock()

	env, err := s.call(ctx, "accounts", "getaccount", nil, nil)
	if err != nil {
		return err
	}
	var sess SessionJSON
	if len(env.AppData) > 0 {
		if err := json.Unmarshal(env.AppData, &sess); err != nil {
			return fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
		}
	}
	s.mu.Lock()
	s.username = sess.Username
	s.accountID = sess.AccountID
	s.mu.Unlock()
	return nil
}

// setSessionKey replaces the held session key, wiping any previous one.
// Callers must hold s.mu.
func (s *Session) setSessionKey(key string) {
	if s.sessionKey != nil {
		s.sessionKey.Wipe()
	}
	s.sessionKey = crypto.NewSecureBuffer([]byte(key))
}

// CloseSession deletes the session iff this Session created it, then wipes
// the held session key either way. Errors are logged, never returned;
// teardown paths never fail.
func (s *Session) CloseSession(ctx context.Context) {
	s.mu.Lock()
	created := s.createdSession
	s.mu.Unlock()
	if created {
		if _, err := s.call(ctx, "accounts", "closesession", nil, nil); err != nil {
			debug.Errorf("backend", "CloseSession: %v", err)
		}
	}
	s.mu.Lock()
	if s.sessionKey != nil {
		s.sessionKey.Wipe()
		s.sessionKey = nil
	}
	s.sessionID = ""
	s.mu.Unlock()
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

// --- Config / limits ---

func (s *Session) GetConfig(ctx context.Context) (ConfigJSON, error) {
	env, err := s.call(ctx, "server", "getconfig", nil, nil)
	if err != nil {
		return ConfigJSON{}, err
	}
	var out ConfigJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ConfigJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) GetAccountLimits(ctx context.Context) (AccountLimitsJSON, error) {
	env, err := s.call(ctx, "accounts", "getlimits", nil, nil)
	if err != nil {
		return AccountLimitsJSON{}, err
	}
	var out AccountLimitsJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return AccountLimitsJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

// --- Folder/filesystem reads ---

func (s *Session) GetFolder(ctx context.Context, id string) (FolderJSON, error) {
	env, err := s.call(ctx, "folders", "getfolder", map[string]string{"folder": id}, nil)
	if err != nil {
		return FolderJSON{}, err
	}
	var out FolderJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return FolderJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) GetFSRoot(ctx context.Context, fsid string) (FolderJSON, error) {
	env, err := s.call(ctx, "filesystems", "getfsroot", map[string]string{"filesystem": fsid}, nil)
	if err != nil {
		return FolderJSON{}, err
	}
	var out FolderJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return FolderJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) GetFilesystem(ctx context.Context, fsid string) (FilesystemJSON, error) {
	env, err := s.call(ctx, "filesystems", "getfilesystem", map[string]string{"filesystem": fsid}, nil)
	if err != nil {
		return FilesystemJSON{}, err
	}
	var out FilesystemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return FilesystemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) GetFilesystems(ctx context.Context) ([]FilesystemJSON, error) {
	env, err := s.call(ctx, "filesystems", "getfilesystems", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []FilesystemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) GetAdopted(ctx context.Context) (FolderJSON, error) {
	env, err := s.call(ctx, "folders", "getadopted", nil, nil)
	if err != nil {
		return FolderJSON{}, err
	}
	var out FolderJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return FolderJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

// --- Mutations ---

func (s *Session) CreateFile(ctx context.Context, parentID, name string) (ItemJSON, error) {
	env, synthetic, err := s.mutate(ctx, "files", "createfile", map[string]string{"parent": parentID, "name": name}, nil)
	if err != nil {
		return ItemJSON{}, err
	}
	if synthetic {
		return syntheticItem(), nil
	}
	var out ItemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ItemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) CreateFolder(ctx context.Context, parentID, name string) (ItemJSON, error) {
	env, synthetic, err := s.mutate(ctx, "folders", "createfolder", map[string]string{"parent": parentID, "name": name}, nil)
	if err != nil {
		return ItemJSON{}, err
	}
	if synthetic {
		return syntheticItem(), nil
	}
	var out ItemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ItemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) UploadFile(ctx context.Context, parentID, name string, data []byte) (ItemJSON, error) {
	files := map[string]runner.InputFile{"file": {Name: name, Reader: bytes.NewReader(data)}}
	env, synthetic, err := s.mutate(ctx, "files", "upload", map[string]string{"parent": parentID, "name": name}, files)
	if err != nil {
		return ItemJSON{}, err
	}
	if synthetic {
		return syntheticItem(), nil
	}
	var out ItemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ItemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

// DeleteFile swallows a "not found" response.
func (s *Session) DeleteFile(ctx context.Context, id string) error {
	_, _, err := s.mutate(ctx, "files", "deletefile", map[string]string{"file": id}, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// DeleteFolder swallows a "not found" response.
func (s *Session) DeleteFolder(ctx context.Context, id string) error {
	_, _, err := s.mutate(ctx, "folders", "deletefolder", map[string]string{"folder": id}, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *Session) RenameFile(ctx context.Context, id, name string, overwrite bool) (ItemJSON, error) {
	return s.rename(ctx, "files", "renamefile", "file", id, name, overwrite)
}

func (s *Session) RenameFolder(ctx context.Context, id, name string, overwrite bool) (ItemJSON, error) {
	return s.rename(ctx, "folders", "renamefolder", "folder", id, name, overwrite)
}

func (s *Session) rename(ctx context.Context, app, action, idField, id, name string, overwrite bool) (ItemJSON, error) {
	params := map[string]string{idField: id, "name": name, "overwrite": strconv.FormatBool(overwrite)}
	env, synthetic, err := s.mutate(ctx, app, action, params, nil)
	if err != nil {
		return ItemJSON{}, err
	}
	if synthetic {
		return syntheticItem(), nil
	}
	var out ItemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ItemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

func (s *Session) MoveFile(ctx context.Context, id, parentID string, overwrite bool) (ItemJSON, error) {
	return s.move(ctx, "files", "movefile", "file", id, parentID, overwrite)
}

func (s *Session) MoveFolder(ctx context.Context, id, parentID string, overwrite bool) (ItemJSON, error) {
	return s.move(ctx, "folders", "movefolder", "folder", id, parentID, overwrite)
}

func (s *Session) move(ctx context.Context, app, action, idField, id, parentID string, overwrite bool) (ItemJSON, error) {
	params := map[string]string{idField: id, "parent": parentID, "overwrite": strconv.FormatBool(overwrite)}
	env, synthetic, err := s.mutate(ctx, app, action, params, nil)
	if err != nil {
		return ItemJSON{}, err
	}
	if synthetic {
		return syntheticItem(), nil
	}
	var out ItemJSON
	if err := json.Unmarshal(env.AppData, &out); err != nil {
		return ItemJSON{}, fmt.Errorf("%w: %v", aerrors.ErrMalformedResponse, err)
	}
	return out, nil
}

// --- Byte-range I/O ---

// ReadFile requests [offset, offset+length) from file id and streams it to
// sink in whatever fragments the runner delivers. It requires the received
// byte count equal length exactly, else returns aerrors.ErrReadSize.
func (s *Session) ReadFile(ctx context.Context, id string, offset, length int64, sink func(bufOffset int64, p []byte) error) error {
	if length <= 0 {
		return nil
	}
	if s.isMemoryMode() {
		s.mem.record("readfile")
		zero := make([]byte, length)
		return sink(0, zero)
	}
	params := map[string]string{
		"file":   id,
		"fstart": strconv.FormatInt(offset, 10),
		"flast":  strconv.FormatInt(offset+length-1, 10),
	}
	s.injectAuth(params)
	body, err := s.r.RunAction(ctx, runner.Input{App: "files", Action: "readfile", Params: params})
	if err != nil {
		return err
	}
	defer body.Close()

	var received int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if err := sink(received, buf[:n]); err != nil {
				return err
			}
			received += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if received != length {
		return fmt.Errorf("%w: wanted %d, got %d", aerrors.ErrReadSize, length, received)
	}
	return nil
}

// WriteFile writes data at offset within file id.
func (s *Session) WriteFile(ctx context.Context, id string, offset int64, data []byte) error {
	params := map[string]string{"file": id, "fstart": strconv.FormatInt(offset, 10)}
	files := map[string]runner.InputFile{"data": {Name: "data", Reader: bytes.NewReader(data)}}
	_, _, err := s.mutate(ctx, "files", "writefile", params, files)
	return err
}

// TruncateFile truncates file id to size bytes.
func (s *Session) TruncateFile(ctx context.Context, id string, size int64) error {
	params := map[string]string{"file": id, "size": strconv.FormatInt(size, 10)}
	_, _, err := s.mutate(ctx, "files", "truncate", params, nil)
	return err
}

