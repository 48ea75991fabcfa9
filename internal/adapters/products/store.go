package products

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"funpay-agent/internal/domain"
)

// FileStore хранит товары для автовыдачи в текстовых файлах, по товару на строку.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ domain.ProductStore = (*FileStore)(nil)

// NewFileStore создаёт хранилище в каталоге dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(file string) (string, error) {
	clean := filepath.Clean(file)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("products: недопустимое имя файла %q", file)
	}
	return filepath.Join(s.dir, clean), nil
}

func readProducts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var products []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			products = append(products, line)
		}
	}
	return products, scanner.Err()
}

func writeProducts(path string, products []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, p := range products {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Take забирает первые amount товаров из файла.
func (s *FileStore) Take(file string, amount int) ([]string, error) {
	if amount < 1 {
		return nil, fmt.Errorf("products: количество %d", amount)
	}
	path, err := s.path(file)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := readProducts(path)
	if err != nil {
		return nil, fmt.Errorf("products: чтение %s: %w", file, err)
	}
	if len(products) < amount {
		return nil, fmt.Errorf("products: %s содержит %d из %d: %w", file, len(products), amount, domain.ErrNotEnoughProducts)
	}
	taken := append([]string(nil), products[:amount]...)
	if err := writeProducts(path, products[amount:]); err != nil {
		return nil, fmt.Errorf("products: запись %s: %w", file, err)
	}
	return taken, nil
}

// Add дописывает товары в конец файла.
func (s *FileStore) Add(file string, items []string) error {
	path, err := s.path(file)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := readProducts(path)
	if err != nil {
		return fmt.Errorf("products: чтение %s: %w", file, err)
	}
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			products = append(products, item)
		}
	}
	return writeProducts(path, products)
}

// Count возвращает количество товаров в файле.
func (s *FileStore) Count(file string) (int, error) {
	path, err := s.path(file)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	products, err := readProducts(path)
	if err != nil {
		return 0, fmt.Errorf("products: чтение %s: %w", file, err)
	}
	return len(products), nil
}
