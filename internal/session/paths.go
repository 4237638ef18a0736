package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wamon.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wamon")
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

// ProfileDir returns the persistent browser profile directory. WhatsApp Web
// keeps its own session cookies here, so logins survive daemon restarts.
func ProfileDir(name string) string {
	return filepath.Join(Dir(name), "profile")
}

// DBPath returns the message store path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "wamon.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wamond.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		ProfileDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
