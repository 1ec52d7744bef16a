// Package storage 保存退货凭证等上传文件。
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix 返回给客户端的相对路径前缀，由 router 以静态目录对外提供。
const PublicPrefix = "uploads"

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// LocalStore 把文件写入本地目录，文件名由 uuid 生成。
type LocalStore struct {
	dir     string
	maxSize int64
}

func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, maxSize: maxSize}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save 写入一张图片，返回 uploads/<name>。超出 maxSize 的文件不会留在磁盘上。
func (s *LocalStore) Save(original string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedExt[ext] {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
	name := uuid.NewString() + ext
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxSize {
		err = fmt.Errorf("file exceeds %d bytes", s.maxSize)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return PublicPrefix + "/" + name, nil
}

// Remove 删除 Save 返回的路径，用于请求失败后的清理。
func (s *LocalStore) Remove(path string) error {
	name := filepath.Base(strings.TrimPrefix(path, PublicPrefix+"/"))
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists 判断 path 是否是本存储返回过且仍在磁盘上的文件。
func (s *LocalStore) Exists(path string) bool {
	name, found := strings.CutPrefix(path, PublicPrefix+"/")
	if !found || name == "" || name != filepath.Base(name) || !allowedExt[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	fi, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && fi.Mode().IsRegular()
}
