package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "CHITCHAT_HOME"

// BaseDir returns $CHITCHAT_HOME, or ~/.chitchat.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chitchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the session's chitchat.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "chitchat.db")
}

// CredentialsPath returns where the signed-in identity is persisted.
func CredentialsPath(name string) string {
	return filepath.Join(Dir(name), "credentials.jwt")
}

// AttachmentsDir returns the local attachment store root.
func AttachmentsDir(name string) string {
	return filepath.Join(Dir(name), "attachments")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chitchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPaths returns the .env files consulted for secrets, global first.
func EnvPaths(name string) []string {
	return []string{
		filepath.Join(Dir(name), ".env"),
		filepath.Join(BaseDir(), ".env"),
	}
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		AttachmentsDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
