package covers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Prefix is the directory part of the relative cover path stored on a book.
const Prefix = "covers/"

var ErrUnsupportedType = errors.New("only jpg and png covers are supported")

var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Getter fetches a remote resource. The caller closes the body.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Store keeps cover images in a directory on disk.
type Store struct {
	dir    string
	getter Getter
	now    func() time.Time
}

// NewStore creates the cover directory if needed. getter may be nil when downloads are not used.
func NewStore(dir string, getter Getter) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create covers dir: %w", err)
	}
	return &Store{dir: dir, getter: getter, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes an uploaded cover for a book and returns its relative path.
func (s *Store) Save(bookID uint, filename string, r io.Reader) (string, error) {
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "", ErrUnsupportedType
	}

	name, err := s.generateFilename(bookID, filename)
	if err != nil {
		return "", err
	}
	if err := s.write(name, r); err != nil {
		return "", err
	}
	return Prefix + name, nil
}

// Download fetches a remote cover for a book and returns its relative path.
func (s *Store) Download(ctx context.Context, bookID uint, coverURL string) (string, error) {
	if s.getter == nil {
		return "", errors.New("cover downloads are not configured")
	}
	u, err := url.Parse(coverURL)
	if err != nil {
		return "", fmt.Errorf("invalid cover url: %w", err)
	}
	resp, err := s.getter.Get(ctx, coverURL)
	if err != nil {
		return "", fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()

	filename := path.Base(u.Path)
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		switch strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]) {
		case "image/jpeg":
			filename += ".jpg"
		case "image/png":
			filename += ".png"
		default:
			return "", ErrUnsupportedType
		}
	}
	return s.Save(bookID, filename, resp.Body)
}

// Path resolves a relative cover path to a file inside the store.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.dir, filepath.Base(strings.TrimPrefix(rel, Prefix)))
}

// Exists reports whether the cover file of rel is present.
func (s *Store) Exists(rel string) bool {
	if rel == "" {
		return false
	}
	info, err := os.Stat(s.Path(rel))
	return err == nil && !info.IsDir()
}

// Remove deletes the cover file of rel. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	if err := os.Remove(s.Path(rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cover: %w", err)
	}
	return nil
}

func (s *Store) write(name string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(s.dir, "cover_tmp_")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(s.dir, name))
}

// generateFilename builds "{timestamp}-{book id}-{random}-{secure name}".
func (s *Store) generateFilename(bookID uint, filename string) (string, error) {
	random, err := randomString(8)
	if err != nil {
		return "", err
	}
	secure := strings.ReplaceAll(SecureFilename(filename), "-", "")
	return fmt.Sprintf("%s-%d-%s-%s", s.now().Format("20060102150405"), bookID, random, secure), nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(randomAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = randomAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// SecureFilename reduces a client supplied filename to ASCII letters, digits, '_', '.' and '-'.
func SecureFilename(filename string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(filename) {
		if r < unicode.MaxASCII {
			ascii.WriteRune(r)
		}
	}
	name := strings.NewReplacer("/", " ", "\\", " ").Replace(ascii.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
