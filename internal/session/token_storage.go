// Package session は「誰がログインしているか」の単一の情報源を提供する。
// Identityのライフサイクル管理と、プロセス再起動をまたぐトークンの永続化を含む。
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStorage は永続化トークンの読み書きを定義する。
// 保存されるのは不透明なBearerトークン1つのみで、書き込みは常に全上書きとなる。
// トークンの不在は匿名セッションを意味する。
type TokenStorage interface {
	// Load は保存されたトークンを返す。未保存の場合は空文字列を返す（エラーではない）。
	Load() (string, error)
	// Save はトークンを全上書きで保存する。
	Save(token string) error
	// Clear は保存されたトークンを削除する。未保存の場合も成功扱い。
	Clear() error
}

// FileTokenStorage はトークンをローカルファイルに永続化する。
// ファイルは0600、親ディレクトリは0700で作成する。
type FileTokenStorage struct {
	path string
}

// NewFileTokenStorage はFileTokenStorageを生成する。
func NewFileTokenStorage(path string) *FileTokenStorage {
	return &FileTokenStorage{path: path}
}

// Load は保存されたトークンを読み込む。
// ファイルが存在しない場合は空文字列を返す。
func (s *FileTokenStorage) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("トークンファイルの読み込みに失敗しました: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save はトークンをファイルに全上書きで保存する。
func (s *FileTokenStorage) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("トークンディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("トークンファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Clear はトークンファイルを削除する。ファイルが存在しない場合も成功扱い。
func (s *FileTokenStorage) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("トークンファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// MemoryTokenStorage はテスト用のインメモリTokenStorage実装。
type MemoryTokenStorage struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStorage はMemoryTokenStorageを生成する。
func NewMemoryTokenStorage() *MemoryTokenStorage {
	return &MemoryTokenStorage{}
}

// Load は保持中のトークンを返す。
func (s *MemoryTokenStorage) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save はトークンを保持する。
func (s *MemoryTokenStorage) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear は保持中のトークンを消去する。
func (s *MemoryTokenStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
