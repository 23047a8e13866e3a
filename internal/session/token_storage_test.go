package session

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFileTokenStorage_SaveAndLoad は保存したトークンがそのまま読み出せることを検証する。
func TestFileTokenStorage_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "token")
	storage := NewFileTokenStorage(path)

	if err := storage.Save("test-token-value"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	got, err := storage.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if got != "test-token-value" {
		t.Errorf("Load() = %q, want %q", got, "test-token-value")
	}
}

// TestFileTokenStorage_Load_MissingFile はファイル不在時に空文字列が返ることを検証する。
// 初回起動時はトークンファイルが存在しないため、これはエラーではない。
func TestFileTokenStorage_Load_MissingFile(t *testing.T) {
	storage := NewFileTokenStorage(filepath.Join(t.TempDir(), "no-such-file"))

	got, err := storage.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if got != "" {
		t.Errorf("Load() = %q, want empty string", got)
	}
}

// TestFileTokenStorage_Clear はクリア後にトークンが読めなくなることを検証する。
func TestFileTokenStorage_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	storage := NewFileTokenStorage(path)

	if err := storage.Save("token"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if err := storage.Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}

	got, err := storage.Load()
	if err != nil {
		t.Fatalf("Load() after Clear() returned error: %v", err)
	}
	if got != "" {
		t.Errorf("Load() after Clear() = %q, want empty string", got)
	}

	// 再クリアしてもエラーにならないこと
	if err := storage.Clear(); err != nil {
		t.Fatalf("Clear() on missing file returned error: %v", err)
	}
}

// TestFileTokenStorage_FilePermissions はトークンファイルが所有者のみ読み書き可能で
// 作成されることを検証する。
func TestFileTokenStorage_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	storage := NewFileTokenStorage(path)

	if err := storage.Save("token"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() returned error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file permissions = %o, want 600", perm)
	}
}

// TestMemoryTokenStorage_RoundTrip はインメモリストレージの基本動作を検証する。
func TestMemoryTokenStorage_RoundTrip(t *testing.T) {
	storage := NewMemoryTokenStorage()

	if err := storage.Save("tok"); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	got, _ := storage.Load()
	if got != "tok" {
		t.Errorf("Load() = %q, want %q", got, "tok")
	}

	if err := storage.Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	got, _ = storage.Load()
	if got != "" {
		t.Errorf("Load() after Clear() = %q, want empty", got)
	}
}
